package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/pager/server/internal/model"
	"github.com/pager/server/internal/repo"
)

// Payload is a signed request as submitted by a client. Contents is kept in
// its raw serialized form: the signature covers those exact bytes.
type Payload struct {
	AuthToken string          `json:"authToken"`
	Signature string          `json:"signature"`
	Contents  json.RawMessage `json:"contents"`
}

// Verdict is the outcome of verifying a signed payload. User and Group carry
// whatever was resolved before the decision, so callers can audit-log
// failures with as much identity as is known.
type Verdict struct {
	Failed   bool
	Message  string
	User     *model.User
	Group    *model.Group
	Contents json.RawMessage
}

// Verifier authenticates signed request payloads and consumes their
// one-time request identifiers.
type Verifier struct {
	users       repo.UserRepo
	groups      repo.GroupRepo
	identifiers repo.IdentifierRepo
}

// NewVerifier creates a new Verifier
func NewVerifier(users repo.UserRepo, groups repo.GroupRepo, identifiers repo.IdentifierRepo) *Verifier {
	return &Verifier{users: users, groups: groups, identifiers: identifiers}
}

// requestIdentifierLength is the exact length of a client request identifier
const requestIdentifierLength = 36

// Verify validates a signed payload and, on success, claims its request
// identifier. It never returns an error: every outcome is a Verdict, and
// unexpected internal failures collapse into a generic failure verdict.
func (v *Verifier) Verify(ctx context.Context, payload Payload) Verdict {
	fail := func(message string, user *model.User, group *model.Group) Verdict {
		return Verdict{Failed: true, Message: message, User: user, Group: group, Contents: payload.Contents}
	}
	crash := func(err error) Verdict {
		log.Printf("[AUTH] Authentication failed; server error %q.", err)
		return fail("Unknown server crash; contact support", nil, nil)
	}

	// The contents must carry a string request identifier of the exact length
	var probe struct {
		RequestIdentifier any `json:"requestIdentifier"`
	}
	_ = json.Unmarshal(payload.Contents, &probe)
	identifier, ok := probe.RequestIdentifier.(string)
	if !ok || len(identifier) != requestIdentifierLength {
		log.Printf("[AUTH] Authentication failed; no request identifier provided")
		return fail("No request identifier provided", nil, nil)
	}

	user, err := v.users.GetByRSAKey(ctx, payload.AuthToken)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Printf("[AUTH] Authentication failed; public key not associated with user (%q)", payload.AuthToken)
			return fail("User does not exist; contact support", nil, nil)
		}
		return crash(err)
	}

	group, err := v.groups.GetByID(ctx, user.GroupID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Printf("[AUTH] Authentication failed; user not associated with group (UID %s, NAME %q)", user.ID, user.Name)
			return fail("Not in group; contact support", &user, nil)
		}
		return crash(err)
	}

	pub, err := ParsePublicKey(payload.AuthToken)
	if err != nil {
		return crash(err)
	}
	if err := VerifySignature(pub, payload.Contents, payload.Signature); err != nil {
		log.Printf("[AUTH] Authentication failed; signature invalid (UID: %s, NAME: %q).", user.ID, user.Name)
		return fail("Unknown signature error; contact support", &user, &group)
	}

	// The lock failure message is deliberately generic so a locked account
	// is indistinguishable from a server fault on the client side.
	if user.Locked {
		log.Printf("[AUTH] Locked user %q (UID: %s) attempted to log in.", user.Name, user.ID)
		return fail("Unknown server error; contact support", &user, &group)
	}

	// Claiming the identifier both detects and prevents replays in one
	// statement; a prior claim surfaces as ErrIdentifierUsed.
	if err := v.identifiers.Claim(ctx, user.ID, identifier); err != nil {
		if errors.Is(err, repo.ErrIdentifierUsed) {
			log.Printf("[AUTH] Authentication failed; request identifier %s already used", identifier)
			return fail("Request identifier already used; reduplicated requests not allowed", &user, nil)
		}
		return crash(err)
	}

	log.Printf("[AUTH] Authentication succeeded; successfully authenticated user %q (UID: %s).", user.Name, user.ID)
	return Verdict{
		Failed:   false,
		Message:  "Authentication successful",
		User:     &user,
		Group:    &group,
		Contents: payload.Contents,
	}
}
