package crlparse

import (
	"fmt"
	"os"
)

// tlvHeader is a definite-length DER tag+length header located at a given
// absolute file offset.
type tlvHeader struct {
	Tag          byte
	HeaderLen    int64
	ContentLen   int64
	ContentStart int64 // = offset + HeaderLen
}

func (h tlvHeader) ContentEnd() int64 { return h.ContentStart + h.ContentLen }
func (h tlvHeader) End() int64        { return h.ContentEnd() }

// readHeader decodes the tag and definite-length header at offset. It
// supports only low tag numbers (class/constructed bits plus a tag number
// under 31) and definite lengths up to 8 length-octets, which covers every
// structure a CertificateList contains.
func readHeader(f *os.File, offset int64) (tlvHeader, error) {
	var buf [9]byte
	n, err := f.ReadAt(buf[:2], offset)
	if err != nil || n < 2 {
		return tlvHeader{}, fmt.Errorf("crlparse: reading TLV header at offset %d: %w", offset, err)
	}

	tag := buf[0]
	if tag&0x1F == 0x1F {
		return tlvHeader{}, fmt.Errorf("crlparse: high tag number form unsupported at offset %d", offset)
	}

	first := buf[1]
	if first&0x80 == 0 {
		return tlvHeader{
			Tag:          tag,
			HeaderLen:    2,
			ContentLen:   int64(first),
			ContentStart: offset + 2,
		}, nil
	}

	numLenBytes := int(first & 0x7F)
	if numLenBytes == 0 {
		return tlvHeader{}, fmt.Errorf("crlparse: indefinite length unsupported at offset %d", offset)
	}
	if numLenBytes > 8 {
		return tlvHeader{}, fmt.Errorf("crlparse: length form too wide at offset %d", offset)
	}

	lenBytes := make([]byte, numLenBytes)
	if _, err := f.ReadAt(lenBytes, offset+2); err != nil {
		return tlvHeader{}, fmt.Errorf("crlparse: reading long-form length at offset %d: %w", offset, err)
	}

	var length int64
	for _, b := range lenBytes {
		length = length<<8 | int64(b)
	}

	headerLen := int64(2 + numLenBytes)
	return tlvHeader{
		Tag:          tag,
		HeaderLen:    headerLen,
		ContentLen:   length,
		ContentStart: offset + headerLen,
	}, nil
}

// readFullTLV reads the complete bytes of the TLV at offset (header plus
// content) into memory. Only used for structures known to be small
// (algorithm identifiers, issuer name, extensions) — never for the
// revoked-certificate list.
func readFullTLV(f *os.File, offset int64) ([]byte, tlvHeader, error) {
	h, err := readHeader(f, offset)
	if err != nil {
		return nil, tlvHeader{}, err
	}
	buf := make([]byte, h.HeaderLen+h.ContentLen)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, tlvHeader{}, fmt.Errorf("crlparse: reading TLV content at offset %d: %w", offset, err)
	}
	return buf, h, nil
}

// peekTag returns the tag byte at offset without otherwise interpreting
// the TLV there, or false if offset is at or past limit.
func peekTag(f *os.File, offset, limit int64) (byte, bool, error) {
	if offset >= limit {
		return 0, false, nil
	}
	var b [1]byte
	if _, err := f.ReadAt(b[:], offset); err != nil {
		return 0, false, fmt.Errorf("crlparse: peeking tag at offset %d: %w", offset, err)
	}
	return b[0], true, nil
}
