package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type oggCodec int

const (
	codecUnknown oggCodec = iota
	codecVorbis
	codecOpus
)

const (
	oggHeaderLen  = 27
	oggMaxPages   = 1 << 20
	oggCRCOffset  = 22
	oggHeaderBOS  = 0x02
	opusHeadMagic = "OpusHead"
)

// oggStream is what scanOgg learns about the first logical stream.
type oggStream struct {
	codec       oggCodec
	serial      uint32
	preSkip     uint16
	lastGranule int64
	pages       int
}

var oggCRCTable = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

// oggCRC is the Ogg page checksum: CRC-32, polynomial 0x04c11db7, no
// reflection, zero initial value.
func oggCRC(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}

// scanOgg walks every page, verifying capture pattern, version and CRC,
// and identifies the codec from the first packet of the first stream.
func scanOgg(r io.Reader) (*oggStream, error) {
	var (
		st     oggStream
		header [oggHeaderLen]byte
		first  = true
	)
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) && !first {
				break
			}
			return nil, fmt.Errorf("ogg page %d: %w", st.pages, err)
		}
		if !bytes.Equal(header[:4], []byte("OggS")) {
			return nil, fmt.Errorf("ogg page %d: bad capture pattern", st.pages)
		}
		if header[4] != 0 {
			return nil, fmt.Errorf("ogg page %d: unsupported version %d", st.pages, header[4])
		}

		segCount := int(header[26])
		segTable := make([]byte, segCount)
		if _, err := io.ReadFull(r, segTable); err != nil {
			return nil, fmt.Errorf("ogg page %d: segment table: %w", st.pages, err)
		}
		bodyLen := 0
		for _, s := range segTable {
			bodyLen += int(s)
		}
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("ogg page %d: body: %w", st.pages, err)
		}

		want := binary.LittleEndian.Uint32(header[oggCRCOffset:])
		check := header
		binary.LittleEndian.PutUint32(check[oggCRCOffset:], 0)
		crc := oggCRC(0, check[:])
		crc = oggCRC(crc, segTable)
		crc = oggCRC(crc, body)
		if crc != want {
			return nil, fmt.Errorf("ogg page %d: checksum mismatch", st.pages)
		}

		serial := binary.LittleEndian.Uint32(header[14:18])
		granule := int64(binary.LittleEndian.Uint64(header[6:14]))

		if first {
			if header[5]&oggHeaderBOS == 0 {
				return nil, errors.New("ogg: first page is not a beginning of stream")
			}
			st.serial = serial
			st.codec, st.preSkip = identify(body)
			first = false
		}
		if serial == st.serial && granule > 0 {
			st.lastGranule = granule
		}

		st.pages++
		if st.pages > oggMaxPages {
			return nil, errors.New("ogg: too many pages")
		}
	}
	return &st, nil
}

// identify inspects the identification header packet.
func identify(packet []byte) (oggCodec, uint16) {
	switch {
	case len(packet) >= 19 && string(packet[:8]) == opusHeadMagic:
		return codecOpus, binary.LittleEndian.Uint16(packet[10:12])
	case len(packet) >= 7 && packet[0] == 0x01 && string(packet[1:7]) == "vorbis":
		return codecVorbis, 0
	}
	return codecUnknown, 0
}
