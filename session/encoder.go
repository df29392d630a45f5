package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	sessionFormatVersionCurrent = 1

	maxClients = 255
)

// ErrInvalidEncoding is returned by [Decode] for blobs it cannot read.
var ErrInvalidEncoding = errors.New("invalid session encoding")

// Encode serializes s into the compact binary form stored in Redis. The
// session ID is the key suffix and is not part of the blob.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"userID", s.UserID},
		{"realmID", s.RealmID},
		{"ipAddress", s.IPAddress},
		{"userAgent", s.UserAgent},
	} {
		if err := writeShortString(&buf, field.name, field.value); err != nil {
			return nil, err
		}
	}

	if len(s.Clients) > maxClients {
		return nil, errors.New("too many clients")
	}
	buf.WriteByte(byte(len(s.Clients)))
	for _, client := range s.Clients {
		if err := writeShortString(&buf, "client", client); err != nil {
			return nil, err
		}
	}

	for _, ts := range []int64{s.CreatedAt, s.LastAccess, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	for _, dst := range []*string{&s.UserID, &s.RealmID, &s.IPAddress, &s.UserAgent} {
		if *dst, err = readShortString(reader); err != nil {
			return nil, err
		}
	}

	clientCount, err := reader.ReadByte()
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if clientCount > 0 {
		s.Clients = make([]string, 0, clientCount)
	}
	for i := 0; i < int(clientCount); i++ {
		client, err := readShortString(reader)
		if err != nil {
			return nil, err
		}
		s.Clients = append(s.Clients, client)
	}

	for _, dst := range []*int64{&s.CreatedAt, &s.LastAccess, &s.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, ErrInvalidEncoding
		}
	}

	return s, nil
}

func writeShortString(buf *bytes.Buffer, name, value string) error {
	if len(value) > 255 {
		return errors.New(name + " too long")
	}
	buf.WriteByte(byte(len(value)))
	buf.WriteString(value)
	return nil
}

func readShortString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", ErrInvalidEncoding
	}
	value := make([]byte, n)
	if _, err := io.ReadFull(reader, value); err != nil {
		return "", ErrInvalidEncoding
	}
	return string(value), nil
}
