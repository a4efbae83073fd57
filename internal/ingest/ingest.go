// Package ingest reads a structured build log (one "@nix {json}" event per
// line) and replays it into a progress recorder.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/difflog/internal/progress"
)

// Prefix marks a structured event line.
const Prefix = "@nix "

const maxLineBytes = 16 << 20

// Recorder is the producer side of a progress.Publisher.
type Recorder interface {
	Log(level progress.Level, text string) error
	RecordError(ei progress.ErrorInfo) error
	StartActivity(id progress.ActivityID, typ progress.ActivityType, text string, fields progress.Fields, parent progress.ActivityID) error
	StopActivity(id progress.ActivityID) error
	RecordResult(id progress.ActivityID, fields progress.Fields) error
}

// Stats counts what a Reader has processed.
type Stats struct {
	Lines     int
	Plain     int
	Messages  int
	Started   int
	Stopped   int
	Results   int
	Malformed int
	// SinkErrors counts recorder calls that reported a failed transmission.
	SinkErrors int
}

// Reader decodes event lines and forwards them to a Recorder. It is not safe
// for concurrent use.
type Reader struct {
	rec    Recorder
	logger *zap.Logger
	parser fastjson.Parser
	stats  Stats
}

// NewReader returns a Reader feeding rec.
func NewReader(rec Recorder, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{rec: rec, logger: logger}
}

// Stats returns the counters accumulated so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Run consumes src until EOF or ctx is cancelled. Malformed lines are logged
// and skipped; only read errors and cancellation end the run early.
func (r *Reader) Run(ctx context.Context, src io.Reader) (Stats, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}
		r.Line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return r.stats, fmt.Errorf("read events: %w", err)
	}
	return r.stats, nil
}

// Line processes a single line. Lines without the event prefix are recorded
// as plain messages at info level.
func (r *Reader) Line(line string) {
	r.stats.Lines++
	payload, ok := strings.CutPrefix(line, Prefix)
	if !ok {
		r.stats.Plain++
		r.check(r.rec.Log(progress.LevelInfo, line))
		return
	}
	v, err := r.parser.Parse(payload)
	if err != nil {
		r.malformed(line, err)
		return
	}
	if err := r.event(v); err != nil {
		r.malformed(line, err)
	}
}

func (r *Reader) event(v *fastjson.Value) error {
	action := string(v.GetStringBytes("action"))
	switch action {
	case "start":
		fields, err := decodeFields(v.Get("fields"), nil)
		if err != nil {
			return err
		}
		r.stats.Started++
		r.check(r.rec.StartActivity(
			progress.ActivityID(v.GetUint64("id")),
			progress.ActivityType(v.GetInt("type")),
			string(v.GetStringBytes("text")),
			fields,
			progress.ActivityID(v.GetUint64("parent")),
		))
	case "stop":
		r.stats.Stopped++
		r.check(r.rec.StopActivity(progress.ActivityID(v.GetUint64("id"))))
	case "result":
		fields, err := decodeFields(v.Get("fields"), resultFieldNames[progress.ResultType(v.GetInt("type"))])
		if err != nil {
			return err
		}
		r.stats.Results++
		r.check(r.rec.RecordResult(progress.ActivityID(v.GetUint64("id")), fields))
	case "msg":
		r.stats.Messages++
		r.check(r.message(v))
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

// message records a msg event. Events carrying a raw message, a position or
// a trace are structured errors; the rest are plain log lines.
func (r *Reader) message(v *fastjson.Value) error {
	level := progress.Level(v.GetInt("level"))
	msg := string(v.GetStringBytes("msg"))
	if !v.Exists("raw_msg") && !v.Exists("line") && !v.Exists("trace") {
		return r.rec.Log(level, msg)
	}
	ei := progress.ErrorInfo{
		Level: level,
		Msg:   msg,
		Raw:   string(v.GetStringBytes("raw_msg")),
		Pos:   decodePosition(v),
	}
	for _, t := range v.GetArray("trace") {
		ei.Traces = append(ei.Traces, progress.Trace{
			Raw: string(t.GetStringBytes("raw_msg")),
			Pos: decodePosition(t),
		})
	}
	return r.rec.RecordError(ei)
}

func (r *Reader) check(err error) {
	if err == nil {
		return
	}
	r.stats.SinkErrors++
	r.logger.Warn("progress transmission failed", zap.Error(err))
}

func (r *Reader) malformed(line string, err error) {
	r.stats.Malformed++
	r.logger.Warn("skipping malformed event",
		zap.Int("line", r.stats.Lines),
		zap.Int("bytes", len(line)),
		zap.Error(err),
	)
}

func decodePosition(v *fastjson.Value) *progress.Position {
	if !v.Exists("line") {
		return nil
	}
	return &progress.Position{
		Line:   v.GetInt("line"),
		Column: v.GetInt("column"),
		File:   string(v.GetStringBytes("file")),
	}
}

// resultFieldNames names the positional result fields; unnamed positions
// fall back to their index.
var resultFieldNames = map[progress.ResultType][]string{
	progress.ResFileLinked:       {"bytes", "blocks"},
	progress.ResBuildLogLine:     {"line"},
	progress.ResUntrustedPath:    {"path"},
	progress.ResCorruptedPath:    {"path"},
	progress.ResSetPhase:         {"phase"},
	progress.ResProgress:         {"done", "expected", "running", "failed"},
	progress.ResSetExpected:      {"activity_type", "expected"},
	progress.ResPostBuildLogLine: {"line"},
}

func decodeFields(v *fastjson.Value, names []string) (progress.Fields, error) {
	fields := progress.Fields{}
	if v == nil || v.Type() == fastjson.TypeNull {
		return fields, nil
	}
	items, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	for i, item := range items {
		name := strconv.Itoa(i)
		if i < len(names) {
			name = names[i]
		}
		switch item.Type() {
		case fastjson.TypeNumber:
			n, err := item.Int64()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			fields[name] = progress.IntField(n)
		case fastjson.TypeString:
			fields[name] = progress.TextField(string(item.GetStringBytes()))
		default:
			return nil, fmt.Errorf("field %s: unsupported type %s", name, item.Type())
		}
	}
	return fields, nil
}
