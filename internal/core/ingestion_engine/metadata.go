package ingestion_engine

import (
	"regexp"
	"strings"

	"github.com/prismdocs/prism-server/internal/models"
)

// Patterns for SAP-specific identifiers. Transaction codes are two to
// four letters followed by digits and an optional letter suffix
// (ME21N, VA01, FB60); message codes are one or two letters followed
// by three or four digits (M7001, VL609).
var (
	moduleRe    = regexp.MustCompile(`\b(MM|SD|FI|CO|PP|QM|PM|HR|WM|PS)\b`)
	tcodeRe     = regexp.MustCompile(`\b[A-Z]{2,4}[0-9]{1,3}[A-Z]?\b`)
	errorCodeRe = regexp.MustCompile(`\b[A-Z]{1,2}[0-9]{3,4}\b`)
	referenceRe = regexp.MustCompile(`(?i)(?:reference|ref\.?|document)\s*(?:no\.?|number|#)\s*[:：]?\s*([A-Z0-9][A-Z0-9/-]{3,19})`)
)

const maxCodes = 20

// DetectMetadata scans extracted text for SAP identifiers. The module
// is the most frequently mentioned module code; ties go to the one seen
// first. Code lists keep first-seen order and are capped so one giant
// dump cannot bloat the document row.
func DetectMetadata(text string) models.DocumentMetadata {
	meta := models.DocumentMetadata{
		SAPModule:  dominantModule(text),
		TCodes:     dedupCap(tcodeRe.FindAllString(text, -1)),
		ErrorCodes: dedupCap(errorCodeRe.FindAllString(text, -1)),
	}
	if m := referenceRe.FindStringSubmatch(text); m != nil {
		meta.ReferenceNumber = strings.ToUpper(m[1])
	}
	return meta
}

func dominantModule(text string) string {
	counts := make(map[string]int)
	var order []string
	for _, m := range moduleRe.FindAllString(text, -1) {
		if counts[m] == 0 {
			order = append(order, m)
		}
		counts[m]++
	}

	best := ""
	for _, m := range order {
		if best == "" || counts[m] > counts[best] {
			best = m
		}
	}
	return best
}

func dedupCap(matches []string) []string {
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
		if len(out) == maxCodes {
			break
		}
	}
	return out
}
