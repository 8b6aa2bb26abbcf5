package reliability

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ChecksumVersion prefixes every checksum payload.
const ChecksumVersion = "reliability-log/v1"

const nullValue = "null"

// LogContent is the hashed content of one audit log entry.
type LogContent struct {
	Model          string
	ForeignKey     string
	Sequence       int64
	ScoringVersion string
	FromTotal      *decimal.Decimal
	ToTotal        decimal.Decimal
	FromSnapshot   *string
	ToSnapshot     string
	Source         string
	ActorUserID    string
	ActorService   string
	Message        string
	Created        time.Time
}

// ChecksumPayload is the newline-joined key=value list that gets hashed.
func ChecksumPayload(content LogContent) string {
	fromTotal := nullValue
	if content.FromTotal != nil {
		fromTotal = FormatTotal(*content.FromTotal)
	}
	fromSnapshot := nullValue
	if content.FromSnapshot != nil {
		fromSnapshot = *content.FromSnapshot
	}

	lines := []string{
		ChecksumVersion,
		"model=" + content.Model,
		"foreign_key=" + content.ForeignKey,
		"sequence=" + strconv.FormatInt(content.Sequence, 10),
		"scoring_version=" + content.ScoringVersion,
		"from_total_score=" + fromTotal,
		"to_total_score=" + FormatTotal(content.ToTotal),
		"from_field_scores=" + fromSnapshot,
		"to_field_scores=" + content.ToSnapshot,
		"source=" + content.Source,
		"actor_user_id=" + content.ActorUserID,
		"actor_service=" + content.ActorService,
		"message=" + content.Message,
		"created=" + FormatTimestamp(content.Created),
	}
	return strings.Join(lines, "\n")
}

func ComputeChecksum(content LogContent) string {
	sum := sha256.Sum256([]byte(ChecksumPayload(content)))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum recomputes the checksum and compares it with the stored one.
func VerifyChecksum(stored string, content LogContent) (computed string, valid bool) {
	computed = ComputeChecksum(content)
	normalized := strings.ToLower(strings.TrimSpace(stored))
	valid = subtle.ConstantTimeCompare([]byte(normalized), []byte(computed)) == 1
	return computed, valid
}
