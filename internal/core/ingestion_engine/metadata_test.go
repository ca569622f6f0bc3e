package ingestion_engine

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestDetectMetadataTypicalErrorDoc(t *testing.T) {
	text := `Goods receipt in MM fails in transaction ME21N with message M7001.
	The MM posting period must be open. See also transaction MIGO in MM.`

	meta := DetectMetadata(text)

	if meta.SAPModule != "MM" {
		t.Errorf("SAPModule = %q, want MM", meta.SAPModule)
	}
	if !contains(meta.TCodes, "ME21N") {
		t.Errorf("TCodes = %v, want ME21N present", meta.TCodes)
	}
	if !contains(meta.ErrorCodes, "M7001") {
		t.Errorf("ErrorCodes = %v, want M7001 present", meta.ErrorCodes)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestDetectMetadataModuleFrequency(t *testing.T) {
	// SD appears once, FI three times.
	text := "SD overview. FI posting. FI period. FI balance."
	if got := DetectMetadata(text).SAPModule; got != "FI" {
		t.Errorf("SAPModule = %q, want FI", got)
	}
}

func TestDetectMetadataModuleTieGoesToFirstSeen(t *testing.T) {
	text := "CO report and PP order. CO again, PP again."
	if got := DetectMetadata(text).SAPModule; got != "CO" {
		t.Errorf("SAPModule = %q, want CO (first seen)", got)
	}
}

func TestDetectMetadataNoModule(t *testing.T) {
	meta := DetectMetadata("plain text with no identifiers at all")
	if meta.SAPModule != "" {
		t.Errorf("SAPModule = %q, want empty", meta.SAPModule)
	}
	if meta.TCodes != nil || meta.ErrorCodes != nil {
		t.Errorf("expected no codes, got %v / %v", meta.TCodes, meta.ErrorCodes)
	}
}

func TestDetectMetadataDedupPreservesOrder(t *testing.T) {
	text := "VA01 then FB60 then VA01 again then FB60"
	meta := DetectMetadata(text)
	if !reflect.DeepEqual(meta.TCodes, []string{"VA01", "FB60"}) {
		t.Errorf("TCodes = %v, want [VA01 FB60]", meta.TCodes)
	}
}

func TestDetectMetadataCapsCodeList(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, "ME%02dN ", i)
	}
	meta := DetectMetadata(sb.String())
	if len(meta.TCodes) != maxCodes {
		t.Errorf("len(TCodes) = %d, want %d", len(meta.TCodes), maxCodes)
	}
}

func TestDetectMetadataReferenceNumber(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Reference Number: INC-2024-00123", "INC-2024-00123"},
		{"ref. no. 4500012345 was created", "4500012345"},
		{"Document # SAP/2023-88", "SAP/2023-88"},
		{"no reference here", ""},
	}
	for _, tt := range tests {
		meta := DetectMetadata(tt.text)
		if meta.ReferenceNumber != tt.want {
			t.Errorf("DetectMetadata(%q).ReferenceNumber = %q, want %q",
				tt.text, meta.ReferenceNumber, tt.want)
		}
	}
}
