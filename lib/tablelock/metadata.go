package tablelock

import (
	"bytes"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// pbMagic prefixes every serialized lock record
var pbMagic = []byte("PBUF")

// Field numbers of the lock record
const (
	fieldTableName  protowire.Number = 1
	fieldLockOwner  protowire.Number = 2
	fieldThreadID   protowire.Number = 3
	fieldIsShared   protowire.Number = 4
	fieldPurpose    protowire.Number = 5
	fieldCreateTime protowire.Number = 6

	fieldHostName  protowire.Number = 1
	fieldPort      protowire.Number = 2
	fieldStartCode protowire.Number = 3
)

// Metadata describes the owner of a lock attempt. It is stored in the attempt node and only
// used for observability, it never influences who gets the lock.
type Metadata struct {
	TableName  []byte
	LockOwner  ServerName
	ThreadID   int64 // task id of the owner, see WithTaskID
	Purpose    string
	IsShared   bool
	CreateTime int64 // unix milliseconds
}

// String formats the metadata the way it is logged while waiting for a lock.
func (m *Metadata) String() string {
	return fmt.Sprintf("[tableName=%s, lockOwner=%s, threadId=%d, purpose=%s, isShared=%t]",
		m.TableName, m.LockOwner, m.ThreadID, m.Purpose, m.IsShared)
}

// Created returns the creation time of the lock attempt.
func (m *Metadata) Created() time.Time {
	return time.UnixMilli(m.CreateTime)
}

// Marshal serializes the metadata as magic prefix followed by a protobuf wire record.
func (m *Metadata) Marshal() []byte {
	var owner []byte
	owner = protowire.AppendTag(owner, fieldHostName, protowire.BytesType)
	owner = protowire.AppendString(owner, m.LockOwner.Host)
	owner = protowire.AppendTag(owner, fieldPort, protowire.VarintType)
	owner = protowire.AppendVarint(owner, uint64(m.LockOwner.Port))
	owner = protowire.AppendTag(owner, fieldStartCode, protowire.VarintType)
	owner = protowire.AppendVarint(owner, uint64(m.LockOwner.StartCode))

	b := append([]byte(nil), pbMagic...)
	b = protowire.AppendTag(b, fieldTableName, protowire.BytesType)
	b = protowire.AppendBytes(b, m.TableName)
	b = protowire.AppendTag(b, fieldLockOwner, protowire.BytesType)
	b = protowire.AppendBytes(b, owner)
	b = protowire.AppendTag(b, fieldThreadID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ThreadID))
	b = protowire.AppendTag(b, fieldIsShared, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(m.IsShared))
	b = protowire.AppendTag(b, fieldPurpose, protowire.BytesType)
	b = protowire.AppendString(b, m.Purpose)
	b = protowire.AppendTag(b, fieldCreateTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreateTime))
	return b
}

// ParseMetadata decodes data written by Marshal. Data without the magic prefix or with a
// malformed record yields (nil, false): the node carries no metadata. Unknown fields are skipped.
func ParseMetadata(data []byte) (*Metadata, bool) {
	if len(data) < len(pbMagic) || !bytes.Equal(data[:len(pbMagic)], pbMagic) {
		return nil, false
	}

	m := &Metadata{}
	err := consumeFields(data[len(pbMagic):], func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldTableName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.TableName = append([]byte(nil), v...)
			return n, nil
		case num == fieldLockOwner && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			return n, parseServerName(v, &m.LockOwner)
		case num == fieldThreadID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.ThreadID = int64(v)
			return n, nil
		case num == fieldIsShared && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.IsShared = protowire.DecodeBool(v)
			return n, nil
		case num == fieldPurpose && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Purpose = v
			return n, nil
		case num == fieldCreateTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.CreateTime = int64(v)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		log.Warningf("failed to decode lock metadata: %v", err)
		return nil, false
	}
	return m, true
}

func parseServerName(data []byte, s *ServerName) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldHostName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.Host = v
			return n, nil
		case num == fieldPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.Port = int(v)
			return n, nil
		case num == fieldStartCode && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.StartCode = int64(v)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
}

// consumeFields iterates over the fields of a wire record. fn consumes the value of one field
// and returns the number of bytes used (negative on error, as returned by protowire).
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
