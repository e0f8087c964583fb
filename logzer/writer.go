package logzer

import (
	"container/ring"
	"io"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/gwos/unit/duration"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

var (
	mu        sync.Mutex
	errBuffer = &LogBuffer{Level: zerolog.ErrorLevel, Size: 10}
	current   zerolog.LevelWriter
	logFile   io.WriteCloser
)

type options struct {
	colors     bool
	condense   time.Duration
	lastErrors int
	level      *zerolog.Level
	logFile    io.WriteCloser
	out        io.Writer
	timeFormat string
}

// Option defines logger writer option
type Option func(*options)

// NewLoggerWriter builds writer chain: condenser -> [console formatter, errors buffer]
// applies level globally
func NewLoggerWriter(opts ...Option) zerolog.LevelWriter {
	o := &options{
		lastErrors: 10,
		out:        os.Stdout,
		timeFormat: time.RFC3339,
	}
	for _, optFn := range opts {
		optFn(o)
	}

	mu.Lock()
	defer mu.Unlock()
	if o.level != nil {
		zerolog.SetGlobalLevel(*o.level)
	}
	/* close replaced log file */
	if logFile != nil && logFile != o.logFile {
		_ = logFile.Close()
	}
	logFile = o.logFile
	/* keep the last errors across reconfiguration */
	lastErrors := errBuffer.Records()
	errBuffer = &LogBuffer{Level: zerolog.ErrorLevel, Size: o.lastErrors}
	for _, p := range lastErrors {
		_, _ = errBuffer.WriteLevel(p.lvl, p.buf)
	}

	out := o.out
	if o.logFile != nil {
		out = io.MultiWriter(o.out, o.logFile)
	}
	formatter := &zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    !o.colors,
		TimeFormat: o.timeFormat,
	}
	var w zerolog.LevelWriter = zerolog.MultiLevelWriter(formatter, errBuffer)
	if o.condense > 0 {
		w = &CondenseWriter{LevelWriter: w, Condense: o.condense}
	}
	current = w
	return w
}

// WithColors sets formatter option
func WithColors(b bool) Option {
	return func(o *options) { o.colors = b }
}

// WithCondense enables condensing similar records
func WithCondense(d time.Duration) Option {
	return func(o *options) { o.condense = d }
}

// WithLastErrors sets count of buffered error writes
func WithLastErrors(n int) Option {
	return func(o *options) { o.lastErrors = n }
}

// WithLevel sets global level
func WithLevel(lvl zerolog.Level) Option {
	return func(o *options) { o.level = &lvl }
}

// WithLogFile sets filelog option
func WithLogFile(w io.WriteCloser) Option {
	return func(o *options) { o.logFile = w }
}

// WithOutput overrides stdout
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithTimeFormat sets formatter option
func WithTimeFormat(s string) Option {
	return func(o *options) { o.timeFormat = s }
}

// LastErrors returns last error writes
func LastErrors() []LogRecord {
	mu.Lock()
	defer mu.Unlock()
	return errBuffer.Records()
}

// WriteLogBuffer writes buffered data to current logger writer
func WriteLogBuffer(lb *LogBuffer) {
	mu.Lock()
	w := current
	mu.Unlock()
	if w == nil {
		return
	}
	lvl := zerolog.GlobalLevel()
	for _, p := range lb.Records() {
		if p.lvl >= lvl {
			_, _ = w.WriteLevel(p.lvl, p.buf)
		}
	}
}

// CondenseWriter handles similar writes by caller field
type CondenseWriter struct {
	zerolog.LevelWriter
	mu       sync.Mutex
	once     sync.Once
	cache    *cache.Cache
	callerRe *regexp.Regexp
	Condense time.Duration
}

// Write implements io.Writer interface
func (w *CondenseWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter interface
func (w *CondenseWriter) WriteLevel(lvl zerolog.Level, p []byte) (int, error) {
	w.once.Do(func() {
		w.cache = cache.New(w.Condense*2, w.Condense/4)
		w.cache.OnEvicted(w.onEvicted)
		w.callerRe = regexp.MustCompile(`"` + zerolog.CallerFieldName + `":"[^"]*"`)
	})
	w.mu.Lock()
	defer w.mu.Unlock()

	ck := string(append([]byte{byte(lvl), ':'}, w.callerRe.Find(p)...))
	/* workaround on https://github.com/patrickmn/go-cache/issues/48 */
	w.cache.DeleteExpired()
	if _, ok := w.cache.Get(ck); ok {
		_ = w.cache.Increment(ck, 1)
		return len(p), nil
	}
	_ = w.cache.Add(ck, uint16(0), w.Condense)
	return w.LevelWriter.WriteLevel(lvl, p)
}

func (w *CondenseWriter) onEvicted(ck string, i interface{}) {
	n, ok := i.(uint16)
	if !ok || n == 0 {
		return
	}
	lvl, caller := zerolog.Level(int8(ck[0])), ck[2:]
	period, _ := duration.FromStd(w.Condense)

	buf := append(make([]byte, 0, 200), '{')
	buf = append(buf, `"`+zerolog.LevelFieldName+`":"`...)
	buf = append(buf, lvl.String()...)
	buf = append(buf, `","`+zerolog.TimestampFieldName+`":`...)
	buf = appendTimestamp(buf, time.Now())
	if caller != "" {
		buf = append(buf, ',')
		buf = append(buf, caller...)
	}
	buf = append(buf, `,"`+zerolog.MessageFieldName+`":"[condensed `...)
	buf = strconv.AppendUint(buf, uint64(n), 10)
	buf = append(buf, ` more entries last `...)
	buf = append(buf, period.String()...)
	buf = append(buf, "]\"}\n"...)
	_, _ = w.LevelWriter.WriteLevel(lvl, buf)
}

func appendTimestamp(dst []byte, ts time.Time) []byte {
	switch zerolog.TimeFieldFormat {
	case zerolog.TimeFormatUnix:
		return strconv.AppendInt(dst, ts.Unix(), 10)
	case zerolog.TimeFormatUnixMs:
		return strconv.AppendInt(dst, ts.UnixMilli(), 10)
	case zerolog.TimeFormatUnixMicro:
		return strconv.AppendInt(dst, ts.UnixMicro(), 10)
	}
	dst = append(dst, '"')
	dst = ts.AppendFormat(dst, zerolog.TimeFieldFormat)
	return append(dst, '"')
}

// LogBuffer collects writes if level passed
type LogBuffer struct {
	mu    sync.Mutex
	once  sync.Once
	ring  *ring.Ring
	Level zerolog.Level
	Size  int
}

// Records returns collected writes
func (lb *LogBuffer) Records() []LogRecord {
	lb.init()
	lb.mu.Lock()
	defer lb.mu.Unlock()
	rec := []LogRecord{}
	lb.ring.Do(func(p interface{}) {
		if p != nil {
			rec = append(rec, p.(LogRecord))
		}
	})
	return rec
}

// Write implements io.Writer interface
func (lb *LogBuffer) Write(p []byte) (int, error) {
	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter interface
func (lb *LogBuffer) WriteLevel(lvl zerolog.Level, p []byte) (int, error) {
	lb.init()
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lvl >= lb.Level {
		/* store the copy as source could be updated */
		cp := make([]byte, len(p))
		copy(cp, p)
		lb.ring.Value = LogRecord{cp, lvl}
		lb.ring = lb.ring.Next()
	}
	return len(p), nil
}

func (lb *LogBuffer) init() {
	lb.once.Do(func() {
		if lb.Size < 1 {
			lb.Size = 1
		}
		lb.ring = ring.New(lb.Size)
	})
}

// LogRecord wraps JSON-like data from logger
type LogRecord struct {
	buf []byte
	lvl zerolog.Level
}

// MarshalJSON implements Marshaller interface
func (p LogRecord) MarshalJSON() ([]byte, error) { return p.buf, nil }
