package custodyd

import (
	"fmt"
	"os"
	"unicode"

	"github.com/blendle/zapdriver"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// consoleEncoder replaces control characters in rendered entries so user-supplied strings (request paths,
// decoded transaction fields) cannot forge log lines.
type consoleEncoder struct {
	zapcore.Encoder
}

func (e consoleEncoder) Clone() zapcore.Encoder {
	return consoleEncoder{e.Encoder.Clone()}
}

func (e consoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf, err := e.Encoder.EncodeEntry(entry, fields)
	if err != nil {
		return nil, err
	}

	sanitize(buf.Bytes())
	return buf, nil
}

func sanitize(b []byte) {
	for i := range b {
		if unicode.IsControl(rune(b[i])) && !unicode.IsSpace(rune(b[i])) {
			b[i] = '\x1A' // Substitute character
		}
	}
}

// newEncoder returns the encoder for format: "console" for humans, "json" for log collectors that expect
// Stackdriver field names.
func newEncoder(format string) (zapcore.Encoder, error) {
	switch format {
	case "console":
		return consoleEncoder{zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())}, nil
	case "json":
		return zapcore.NewJSONEncoder(zapdriver.NewProductionEncoderConfig()), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	enc, err := newEncoder(format)
	if err != nil {
		return nil, err
	}
	return zap.New(zapcore.NewCore(
		enc,
		zapcore.AddSync(zapcore.Lock(os.Stderr)),
		zap.NewAtomicLevelAt(lvl))), nil
}
