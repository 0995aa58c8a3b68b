// Package identity derives stable alarm identities and request codes.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash/fnv"
	"log/slog"
	"strconv"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/google/uuid"
)

// DefaultMaxProbes bounds how many alternate request codes are tried for one key.
const DefaultMaxProbes = 8

// DeriveKey returns the stable alarm ID for an (event, rule) pair.
func DeriveKey(eventID string, ruleID int64) string {
	h := sha256.New()
	h.Write([]byte(eventID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(ruleID, 10)))
	return "alarm-" + hex.EncodeToString(h.Sum(nil)[:12])
}

// DeriveRequestCode returns the base request code for an (event, rule) pair.
func DeriveRequestCode(eventID string, ruleID int64) int32 {
	return ProbeRequestCode(DeriveKey(eventID, ruleID), 0)
}

// ProbeRequestCode returns the request code for key on the given probe attempt.
// Attempt 0 is the base code. Codes are always non-negative.
func ProbeRequestCode(key string, attempt int) int32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	if attempt > 0 {
		h.Write([]byte("#" + strconv.Itoa(attempt)))
	}
	return int32(h.Sum32() & 0x7fffffff)
}

// Assignment is the identity handed to one logical alarm.
type Assignment struct {
	Collision   *common.CollisionError // set when a prior key was orphaned
	Key         string
	Orphaned    string
	RequestCode int32
}

// Registry tracks which request codes are held by which alarm keys.
// It is seeded from persisted alarms so existing alarms keep their codes.
type Registry struct {
	byCode    map[int32]string
	byKey     map[string]int32
	maxProbes int
}

// NewRegistry builds a registry from persisted alarms.
func NewRegistry(persisted []model.ScheduledAlarm) *Registry {
	r := &Registry{
		byCode:    make(map[int32]string, len(persisted)),
		byKey:     make(map[string]int32, len(persisted)),
		maxProbes: DefaultMaxProbes,
	}
	for _, alarm := range persisted {
		if holder, taken := r.byCode[alarm.RequestCode]; taken && holder != alarm.ID {
			slog.Warn("Persisted alarms share a request code",
				"request_code", alarm.RequestCode,
				"alarm_id", alarm.ID,
				"holder", holder)
			r.byKey[alarm.ID] = alarm.RequestCode
			continue
		}
		r.byCode[alarm.RequestCode] = alarm.ID
		r.byKey[alarm.ID] = alarm.RequestCode
	}
	return r
}

// WithMaxProbes overrides the probe bound. Values below one mean a single attempt.
func (r *Registry) WithMaxProbes(n int) *Registry {
	if n < 1 {
		n = 1
	}
	r.maxProbes = n
	return r
}

// Assign returns the identity for an (event, rule) pair.
func (r *Registry) Assign(eventID string, ruleID int64) Assignment {
	key := DeriveKey(eventID, ruleID)
	return r.assignKey(key, func(attempt int) int32 {
		return ProbeRequestCode(key, attempt)
	})
}

// AssignAdHoc returns a random identity for a test or snooze alarm.
func (r *Registry) AssignAdHoc() Assignment {
	id := uuid.New()
	key := "adhoc-" + id.String()
	random := int32(binary.BigEndian.Uint32(id[:4]) & 0x7fffffff)
	return r.assignKey(key, func(attempt int) int32 {
		if attempt == 0 {
			return random
		}
		return ProbeRequestCode(key, attempt)
	})
}

// CodeOf returns the code held by key, if any.
func (r *Registry) CodeOf(key string) (int32, bool) {
	code, ok := r.byKey[key]
	return code, ok
}

func (r *Registry) assignKey(key string, codeFor func(attempt int) int32) Assignment {
	if code, ok := r.byKey[key]; ok {
		return Assignment{Key: key, RequestCode: code}
	}

	for attempt := 0; attempt < r.maxProbes; attempt++ {
		code := codeFor(attempt)
		holder, taken := r.byCode[code]
		if !taken {
			r.register(key, code)
			return Assignment{Key: key, RequestCode: code}
		}
		slog.Warn("Request code collision, probing alternate code",
			"key", key,
			"holder", holder,
			"request_code", code,
			"attempt", attempt)
	}

	// Every probe collided: the newer registration takes the base code and the
	// prior holder is orphaned for the engine to sweep.
	code := codeFor(0)
	orphan := r.byCode[code]
	delete(r.byKey, orphan)
	r.register(key, code)

	collision := &common.CollisionError{NewKey: key, OrphanedKey: orphan, RequestCode: code}
	slog.Error("Request code collision, orphaning prior alarm",
		"key", key,
		"orphaned", orphan,
		"request_code", code)

	return Assignment{Key: key, RequestCode: code, Orphaned: orphan, Collision: collision}
}

func (r *Registry) register(key string, code int32) {
	r.byCode[code] = key
	r.byKey[key] = code
}
