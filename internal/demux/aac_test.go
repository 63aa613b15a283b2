package demux

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zsiec/playcore/internal/media"
)

// adtsFrame builds an ADTS frame without CRC. profile is the 2-bit ADTS
// profile (object type minus one).
func adtsFrame(profile, rateIdx, channels int, payload []byte) []byte {
	frameLen := 7 + len(payload)
	h := []byte{
		0xFF,
		0xF1,
		byte(profile<<6) | byte(rateIdx<<2) | byte(channels>>2&0x01),
		byte(channels&0x03)<<6 | byte(frameLen>>11&0x03),
		byte(frameLen >> 3),
		byte(frameLen&0x07)<<5 | 0x1F,
		0xFC,
	}
	return append(h, payload...)
}

func TestParseADTS(t *testing.T) {
	t.Parallel()
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE}
	frames, err := ParseADTS(adtsFrame(1, 3, 2, payload))
	if err != nil {
		t.Fatalf("ParseADTS: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.SampleRate != 48000 || f.Channels != 2 || f.ObjectType != 2 {
		t.Errorf("frame = %d Hz %d ch type %d, want 48000/2/2", f.SampleRate, f.Channels, f.ObjectType)
	}
	if len(f.Data) != 13 {
		t.Errorf("frame length = %d, want 13", len(f.Data))
	}
}

func TestParseADTSMultipleFrames(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x12}) // junk before sync
	buf.Write(adtsFrame(1, 4, 1, []byte{1, 2, 3}))
	buf.Write(adtsFrame(1, 4, 1, []byte{4, 5}))
	buf.Write(adtsFrame(1, 4, 1, []byte{6, 7, 8, 9})[:8]) // truncated

	frames, err := ParseADTS(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseADTS: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].SampleRate != 44100 || frames[0].Channels != 1 {
		t.Errorf("frame 0 = %d Hz %d ch", frames[0].SampleRate, frames[0].Channels)
	}
	if !bytes.Equal(frames[1].Data[7:], []byte{4, 5}) {
		t.Errorf("frame 1 payload = % X", frames[1].Data[7:])
	}
}

func TestParseADTSWithCRC(t *testing.T) {
	t.Parallel()
	payload := []byte{0x21, 0x00, 0x03}
	frameLen := 9 + len(payload)
	frame := []byte{
		0xFF,
		0xF0, // protection_absent = 0
		byte(1<<6) | byte(3<<2),
		byte(2<<6) | byte(frameLen>>11&0x03),
		byte(frameLen >> 3),
		byte(frameLen&0x07)<<5 | 0x1F,
		0xFC,
		0xAB, 0xCD, // CRC
	}
	frame = append(frame, payload...)

	frames, err := ParseADTS(frame)
	if err != nil {
		t.Fatalf("ParseADTS: %v", err)
	}
	if len(frames) != 1 || len(frames[0].Data) != frameLen {
		t.Fatalf("frames = %+v, want one frame of %d bytes", frames, frameLen)
	}
	if f := frames[0]; f.SampleRate != 48000 || f.Channels != 2 || f.ObjectType != 2 {
		t.Errorf("frame = %d Hz %d ch type %d", f.SampleRate, f.Channels, f.ObjectType)
	}
}

func TestParseADTSBadRate(t *testing.T) {
	t.Parallel()
	_, err := ParseADTS(adtsFrame(1, 15, 2, []byte{1}))
	if !errors.Is(err, ErrInvalidADTS) {
		t.Errorf("err = %v, want ErrInvalidADTS", err)
	}
}

func TestAACFormat(t *testing.T) {
	t.Parallel()
	frames, err := ParseADTS(adtsFrame(1, 3, 2, []byte{0x21, 0x00}))
	if err != nil || len(frames) != 1 {
		t.Fatalf("ParseADTS: %v (%d frames)", err, len(frames))
	}
	f, err := AACFormat(frames[0])
	if err != nil {
		t.Fatalf("AACFormat: %v", err)
	}
	if f.MIME != media.MIMEAudioAAC || f.SampleRate != 48000 || f.Channels != 2 {
		t.Errorf("format = %v", f)
	}
	if want := []byte{0x11, 0x90}; !bytes.Equal(f.CodecConfig, want) {
		t.Errorf("AudioSpecificConfig = % X, want % X", f.CodecConfig, want)
	}
}
