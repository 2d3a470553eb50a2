package render

import (
	"crypto/sha256"
	"encoding/hex"
)

// InlineAsset is a file embedded in the HTML body and referenced by CID.
type InlineAsset struct {
	CID         string
	Filename    string
	ContentType string
	Data        []byte
}

// Message is the outgoing mail for one report.
type Message struct {
	To        []string
	Subject   string
	PlainText string
	HTML      string // empty when no alternative is produced
	Inline    []InlineAsset

	// The workbook itself travels as a regular attachment, read at send time.
	AttachmentPath string
	AttachmentName string

	// Degraded is set when at least one enrichment step fell back.
	Degraded bool
}

const cidDomain = "sitereports"

// ContentID derives a stable content identifier from asset bytes.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16]) + "@" + cidDomain
}
