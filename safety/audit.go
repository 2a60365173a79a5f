package safety

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// AuditRecord is one line of the append-only audit log (spec §6.5).
type AuditRecord struct {
	Timestamp string                 `json:"timestamp"`
	Seq       uint64                 `json:"seq"`
	PrevHash  string                 `json:"prev_hash"`
	HMAC      string                 `json:"hmac,omitempty"`
	EventKind string                 `json:"event_kind"`
	Payload   map[string]interface{} `json:"payload"`
}

// AuditLog appends integrity-chained, optionally HMAC-signed security
// events (FFI validation failures, timeouts, path violations, sanitizer
// hits) to a file. Writes are serialized by a mutex (spec §5).
type AuditLog struct {
	mu       sync.Mutex
	w        *bufio.Writer
	f        *os.File
	seq      uint64
	prevHash string
	hmacKey  []byte
	log      *zap.Logger
	nowFunc  func() string
}

// OpenAuditLog opens (creating if needed) the append-only file at path. If
// hmacKey is non-empty every record is also HMAC-signed.
func OpenAuditLog(path string, hmacKey string, log *zap.Logger) (*AuditLog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "opening audit log %s", path)
	}
	a := &AuditLog{
		w:       bufio.NewWriter(f),
		f:       f,
		hmacKey: []byte(hmacKey),
		log:     log,
		nowFunc: defaultNow,
	}
	if seq, prevHash, err := replayTail(path); err == nil {
		a.seq = seq
		a.prevHash = prevHash
	}
	return a, nil
}

func defaultNow() string {
	return nowRFC3339()
}

// Append writes one chained record for eventKind with the given payload
// fields, computing prevHash from the last written record and signing with
// HMAC if a key was configured.
func (a *AuditLog) Append(eventKind string, payload map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	rec := AuditRecord{
		Timestamp: a.nowFunc(),
		Seq:       a.seq,
		PrevHash:  a.prevHash,
		EventKind: eventKind,
		Payload:   payload,
	}

	canonical, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshaling audit record")
	}
	hash := sha256.Sum256(canonical)
	hashHex := fmt.Sprintf("%x", hash)

	if len(a.hmacKey) > 0 {
		mac := hmac.New(sha256.New, a.hmacKey)
		mac.Write(canonical)
		rec.HMAC = fmt.Sprintf("%x", mac.Sum(nil))
		canonical, err = json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "marshaling signed audit record")
		}
	}

	if _, err := a.w.Write(canonical); err != nil {
		return errors.Wrap(err, "writing audit record")
	}
	if err := a.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := a.w.Flush(); err != nil {
		return errors.Wrap(err, "flushing audit log")
	}

	a.prevHash = hashHex
	a.log.Debug("audit event", zap.String("kind", eventKind), zap.Uint64("seq", a.seq))
	return nil
}

// Close flushes and closes the underlying file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.w.Flush(); err != nil {
		return err
	}
	return a.f.Close()
}

// Verify replays the log at path in order, recomputing hashes, and reports
// the number of intact records and the point (if any) where the chain
// breaks or a truncated/partial record is encountered, per spec §9
// ("robust to partial-write crashes; verify stops at the last intact
// record").
func Verify(path string, hmacKey string) (intact int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening audit log %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	prevHash := ""
	seq := uint64(0)

	for scanner.Scan() {
		line := scanner.Bytes()
		var rec AuditRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return intact, nil // partial/corrupt final line: stop here, not an error
		}
		if rec.Seq != seq+1 || rec.PrevHash != prevHash {
			return intact, nil
		}

		check := rec
		check.HMAC = ""
		canonical, _ := json.Marshal(check)
		hash := sha256.Sum256(canonical)
		hashHex := fmt.Sprintf("%x", hash)

		if len(hmacKey) > 0 {
			mac := hmac.New(sha256.New, []byte(hmacKey))
			mac.Write(canonical)
			expected := fmt.Sprintf("%x", mac.Sum(nil))
			if rec.HMAC != expected {
				return intact, nil
			}
		}

		prevHash = hashHex
		seq = rec.Seq
		intact++
	}
	return intact, nil
}

// replayTail recovers (seq, prevHash) so a reopened log continues the chain
// rather than restarting it.
func replayTail(path string) (uint64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var last AuditRecord
	found := false
	for scanner.Scan() {
		var rec AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			break
		}
		last = rec
		found = true
	}
	if !found {
		return 0, "", errors.New("empty audit log")
	}

	check := last
	check.HMAC = ""
	canonical, _ := json.Marshal(check)
	hash := sha256.Sum256(canonical)
	return last.Seq, fmt.Sprintf("%x", hash), nil
}
