package tablelock

import (
	"bytes"
	"strings"
	"testing"
)

func TestMetadataRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
	}{
		{"write", Metadata{
			TableName:  []byte("orders"),
			LockOwner:  ServerName{Host: "master-1", Port: 16000, StartCode: 1700000000000},
			ThreadID:   42,
			Purpose:    "alter table",
			CreateTime: 1700000001234,
		}},
		{"read", Metadata{
			TableName: []byte("users"),
			LockOwner: ServerName{Host: "m", Port: 1},
			IsShared:  true,
			Purpose:   "region split",
		}},
		{"empty", Metadata{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.md.Marshal()
			if !bytes.HasPrefix(data, pbMagic) {
				t.Fatalf("Marshal() = %q, want magic prefix", data)
			}
			got, ok := ParseMetadata(data)
			if !ok {
				t.Fatalf("ParseMetadata() failed")
			}
			if !bytes.Equal(got.TableName, tt.md.TableName) {
				t.Errorf("TableName = %q, want %q", got.TableName, tt.md.TableName)
			}
			if got.LockOwner != tt.md.LockOwner {
				t.Errorf("LockOwner = %v, want %v", got.LockOwner, tt.md.LockOwner)
			}
			if got.ThreadID != tt.md.ThreadID || got.Purpose != tt.md.Purpose ||
				got.IsShared != tt.md.IsShared || got.CreateTime != tt.md.CreateTime {
				t.Errorf("ParseMetadata() = %+v, want %+v", got, tt.md)
			}
		})
	}
}

func TestParseMetadataGarbage(t *testing.T) {
	md := Metadata{TableName: []byte("orders"), Purpose: "x"}
	full := md.Marshal()

	tests := []struct {
		name   string
		data   []byte
		wantOK bool
	}{
		{"nil", nil, false},
		{"no magic", []byte("hello world"), false},
		{"magic only", []byte("PBUF"), true},
		{"truncated", full[:len(full)-1], false},
		{"bad tag", append([]byte("PBUF"), 0xff, 0xff, 0xff), false},
		{"unknown field", append(append([]byte(nil), full...), 0x38, 0x01), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMetadata(tt.data)
			if ok != tt.wantOK {
				t.Errorf("ParseMetadata(%q) ok = %v, want %v (%v)", tt.data, ok, tt.wantOK, got)
			}
		})
	}
}

func TestMetadataString(t *testing.T) {
	md := Metadata{
		TableName: []byte("orders"),
		LockOwner: ServerName{Host: "master-1", Port: 16000, StartCode: 7},
		ThreadID:  3,
		Purpose:   "delete table",
	}
	want := "[tableName=orders, lockOwner=master-1,16000,7, threadId=3, purpose=delete table, isShared=false]"
	if got := md.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !strings.Contains(md.LockOwner.String(), "master-1,16000,7") {
		t.Errorf("ServerName.String() = %q", md.LockOwner.String())
	}
}
