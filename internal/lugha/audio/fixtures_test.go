package audio

import (
	"bytes"
	"encoding/binary"
)

// makeWAV returns a 16-bit mono PCM WAV of the given length.
func makeWAV(seconds float64, rate int) []byte {
	n := int(seconds * float64(rate))
	data := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16((i%100)*300-15000)))
	}

	var b bytes.Buffer
	w := func(v any) { binary.Write(&b, binary.LittleEndian, v) }
	b.WriteString("RIFF")
	w(uint32(36 + len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1)) // PCM
	w(uint16(1)) // mono
	w(uint32(rate))
	w(uint32(rate * 2))
	w(uint16(2))
	w(uint16(16))
	b.WriteString("data")
	w(uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

// oggPage builds one page with a valid checksum.
func oggPage(headerType byte, granule int64, serial, seq uint32, packet []byte) []byte {
	var segs []byte
	rest := len(packet)
	for rest >= 255 {
		segs = append(segs, 255)
		rest -= 255
	}
	segs = append(segs, byte(rest))

	page := make([]byte, oggHeaderLen, oggHeaderLen+len(segs)+len(packet))
	copy(page, "OggS")
	page[5] = headerType
	binary.LittleEndian.PutUint64(page[6:], uint64(granule))
	binary.LittleEndian.PutUint32(page[14:], serial)
	binary.LittleEndian.PutUint32(page[18:], seq)
	page[26] = byte(len(segs))
	page = append(page, segs...)
	page = append(page, packet...)

	binary.LittleEndian.PutUint32(page[oggCRCOffset:], oggCRC(0, page))
	return page
}

// makeOpus returns an Ogg/Opus stream whose granule position encodes the
// given number of 48 kHz samples after pre-skip.
func makeOpus(samples int64, preSkip uint16) []byte {
	head := make([]byte, 19)
	copy(head, opusHeadMagic)
	head[8] = 1 // version
	head[9] = 1 // channels
	binary.LittleEndian.PutUint16(head[10:], preSkip)
	binary.LittleEndian.PutUint32(head[12:], 16000)

	tags := append([]byte("OpusTags"), make([]byte, 8)...)
	audioPacket := bytes.Repeat([]byte{0xFC, 0xFF, 0xFE}, 40)

	var b bytes.Buffer
	b.Write(oggPage(oggHeaderBOS, 0, 7, 0, head))
	b.Write(oggPage(0, 0, 7, 1, tags))
	b.Write(oggPage(0, samples/2+int64(preSkip), 7, 2, audioPacket))
	b.Write(oggPage(0x04, samples+int64(preSkip), 7, 3, audioPacket))
	return b.Bytes()
}
