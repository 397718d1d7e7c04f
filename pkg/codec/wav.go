package codec

import "encoding/binary"

// WAVHeaderSize is the size of the canonical RIFF/WAVE header.
const WAVHeaderSize = 44

// WAVFromPCM wraps mono PCM16 bytes in a canonical 44-byte WAV header.
func WAVFromPCM(pcm []byte, sampleRate int) []byte {
	dataSize := uint32(len(pcm))
	buf := make([]byte, WAVHeaderSize+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataSize)
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                   // Subchunk1Size
	binary.LittleEndian.PutUint16(buf[20:22], 1)                    // AudioFormat: PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1)                    // NumChannels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))   // SampleRate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // ByteRate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // BlockAlign
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // BitsPerSample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataSize)

	copy(buf[WAVHeaderSize:], pcm)
	return buf
}
