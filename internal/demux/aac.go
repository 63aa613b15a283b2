package demux

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/zsiec/playcore/internal/media"
)

// ErrInvalidADTS is returned when an ADTS header is malformed.
var ErrInvalidADTS = errors.New("invalid ADTS header")

// AACSamplesPerFrame is the frame length of AAC-LC.
const AACSamplesPerFrame = 1024

// AACFrame is one AAC frame split out of an ADTS stream.
type AACFrame struct {
	Data       []byte // header and payload
	ObjectType int    // MPEG-4 audio object type (profile + 1)
	SampleRate int
	Channels   int
}

// ParseADTS splits an ADTS byte stream into frames. Bytes before a sync
// word are skipped; a truncated trailing frame is ignored.
func ParseADTS(data []byte) ([]AACFrame, error) {
	var frames []AACFrame
	for off := 0; len(data)-off >= 7; {
		h := data[off:]
		if h[0] != 0xFF || h[1]&0xF0 != 0xF0 {
			off++
			continue
		}

		headerSize := 7
		if h[1]&0x01 == 0 {
			headerSize = 9 // CRC present
		}
		frameLen := int(h[3]&0x03)<<11 | int(h[4])<<3 | int(h[5]>>5)
		if frameLen < headerSize || frameLen > len(h) {
			break
		}
		pkt, err := decodeADTSHeader(h[:frameLen], headerSize)
		if err != nil {
			return frames, fmt.Errorf("%w: %w", ErrInvalidADTS, err)
		}

		frames = append(frames, AACFrame{
			Data:       h[:frameLen],
			ObjectType: int(pkt.Type),
			SampleRate: pkt.SampleRate,
			Channels:   pkt.ChannelCount,
		})
		off += frameLen
	}
	return frames, nil
}

// decodeADTSHeader decodes the header of one complete frame. The CRC of
// a protected frame is cut out first, since mediacommon only reads
// unprotected frames.
func decodeADTSHeader(frame []byte, headerSize int) (*mpeg4audio.ADTSPacket, error) {
	if headerSize == 9 {
		au := frame[9:]
		n := 7 + len(au)
		plain := make([]byte, 0, n)
		plain = append(plain,
			frame[0],
			frame[1]|0x01,
			frame[2],
			frame[3]&0xFC|byte(n>>11)&0x03,
			byte(n>>3),
			byte(n&0x07)<<5|frame[5]&0x1F,
			frame[6],
		)
		frame = append(plain, au...)
	}
	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(frame); err != nil {
		return nil, err
	}
	return pkts[0], nil
}

// AACFormat derives a stream format from an ADTS frame, carrying an
// AudioSpecificConfig as codec configuration.
func AACFormat(f AACFrame) (*media.Format, error) {
	asc := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectType(f.ObjectType),
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
	}
	cfg, err := asc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("demux: AudioSpecificConfig: %w", err)
	}
	return &media.Format{
		MIME:        media.MIMEAudioAAC,
		SampleRate:  f.SampleRate,
		Channels:    f.Channels,
		CodecConfig: cfg,
	}, nil
}
