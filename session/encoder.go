package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const bindingFormatVersionCurrent = 1

func Encode(b *Binding) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(bindingFormatVersionCurrent)

	for _, field := range []string{b.IdentityID, b.Username, b.Role, b.Origin, b.Client} {
		if len(field) > 65535 {
			return nil, errors.New("binding field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	if err := binary.Write(&buf, binary.BigEndian, b.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, b.LastActivityAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Binding, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != bindingFormatVersionCurrent {
		return nil, errors.New("invalid binding version")
	}

	b := &Binding{}
	for _, target := range []*string{&b.IdentityID, &b.Username, &b.Role, &b.Origin, &b.Client} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*target = string(raw)
	}

	if err := binary.Read(reader, binary.BigEndian, &b.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &b.LastActivityAt); err != nil {
		return nil, err
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes after binding")
	}

	return b, nil
}
