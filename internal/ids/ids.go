// Package ids issues and validates record identifiers.
//
// A record is identified either by a local id, minted on the device before
// the record has ever reached the remote backend, or by a canonical UUIDv4
// issued once it has. The two forms are distinguished by the ID's Kind,
// which is fixed at construction; nothing downstream inspects the string.
package ids

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// Kind tags which authority issued an ID.
type Kind uint8

const (
	KindNone Kind = iota
	KindLocal
	KindCanonical
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindCanonical:
		return "canonical"
	default:
		return "none"
	}
}

var (
	canonicalRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)
	localRe     = regexp.MustCompile(`^[0-9]{13}-[0-9a-f]{8}$`)
)

// ID is a tagged record identifier. The zero value means "unassigned".
type ID struct {
	value string
	kind  Kind
}

// IsCanonical reports whether s is a well-formed UUIDv4.
func IsCanonical(s string) bool {
	return canonicalRe.MatchString(s)
}

// Parse validates s at a trust boundary (storage, wire) and tags it.
func Parse(s string) (ID, error) {
	switch {
	case IsCanonical(s):
		return ID{value: s, kind: KindCanonical}, nil
	case localRe.MatchString(s):
		return ID{value: s, kind: KindLocal}, nil
	default:
		return ID{}, apperr.InvalidID(s)
	}
}

// ParseCanonical is Parse restricted to canonical ids.
func ParseCanonical(s string) (ID, error) {
	if !IsCanonical(s) {
		return ID{}, apperr.InvalidID(s)
	}
	return ID{value: s, kind: KindCanonical}, nil
}

// MustParse is Parse that panics; for tests and constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromUUID tags u as canonical.
func FromUUID(u uuid.UUID) ID {
	return ID{value: u.String(), kind: KindCanonical}
}

func (id ID) String() string   { return id.value }
func (id ID) Kind() Kind        { return id.kind }
func (id ID) IsZero() bool      { return id.kind == KindNone }
func (id ID) IsLocal() bool     { return id.kind == KindLocal }
func (id ID) IsCanonical() bool { return id.kind == KindCanonical }

// MarshalJSON encodes the id as a plain string.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts either form; the empty string yields the zero ID.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*id = ID{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Value stores the id in a uuid column. Local ids never reach the database.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	if !id.IsCanonical() {
		return nil, apperr.InvalidID(id.value)
	}
	return id.value, nil
}

// Scan reads a uuid column.
func (id *ID) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*id = ID{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case [16]byte:
		s = uuid.UUID(v).String()
	default:
		return fmt.Errorf("ids: cannot scan %T", src)
	}
	parsed, err := ParseCanonical(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Generator mints ids. Local ids are strictly increasing per generator so
// they sort by creation without a server.
type Generator struct {
	clock  clock.Clock
	logger *zap.Logger

	mu   sync.Mutex
	last int64
}

// NewGenerator returns a Generator. A nil clock uses wall time.
func NewGenerator(c clock.Clock, logger *zap.Logger) *Generator {
	if c == nil {
		c = clock.Real{}
	}
	return &Generator{clock: c, logger: logging.OrNop(logger)}
}

// NewLocal returns a fresh local id: a zero-padded millisecond prefix and a
// random suffix.
func (g *Generator) NewLocal() ID {
	g.mu.Lock()
	ms := g.clock.Now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()

	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	prefix := strconv.FormatInt(ms, 10)
	for len(prefix) < 13 {
		prefix = "0" + prefix
	}
	return ID{value: prefix + "-" + hex.EncodeToString(suffix[:]), kind: KindLocal}
}

// NewCanonical returns a fresh UUIDv4.
func (g *Generator) NewCanonical() ID {
	return FromUUID(uuid.New())
}

// Coerce returns id unchanged when canonical. Otherwise it logs the coercion
// and issues an unrelated canonical id; local ids carry nothing the server
// could use.
func (g *Generator) Coerce(id ID) ID {
	if id.IsCanonical() {
		return id
	}
	fresh := g.NewCanonical()
	g.logger.Info("coerced identifier to canonical",
		zap.String("from", id.String()),
		zap.Stringer("from_kind", id.Kind()),
		zap.String("to", fresh.String()))
	return fresh
}
