package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/park285/chess-ascension/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrInitTimeout   = errors.New("engine handshake timed out")
	ErrSearchTimeout = errors.New("engine search timed out")
	ErrNoLegalMoves  = errors.New("engine reported no legal moves")
	ErrCanceled      = errors.New("engine session canceled")
	ErrEngineBusy    = errors.New("engine search already in flight")
	ErrEngineExited  = errors.New("engine output closed")
)

const (
	DefaultInitTimeout   = 5 * time.Second
	DefaultSearchTimeout = 30 * time.Second

	defaultReadyTimeout = 4 * time.Second
	lineBuffer          = 64
)

type Options struct {
	Threads       int
	HashMB        int
	SkillLevel    int
	InitTimeout   time.Duration
	SearchTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Threads <= 0 {
		o.Threads = 1
	}
	if o.HashMB <= 0 {
		o.HashMB = 16
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = DefaultInitTimeout
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = DefaultSearchTimeout
	}
	return o
}

func validateOptions(opt Options) error {
	if opt.SkillLevel < 0 || opt.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", opt.SkillLevel)
	}
	return nil
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// Info is the last "info" line seen during a search.
type Info struct {
	Depth  int
	EvalCP int
	PV     []string
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

type SearchResponse struct {
	BestMove string
	Ponder   string
	Info     Info
	Duration time.Duration
}

// Session speaks UCI to one engine process. At most one search runs at a
// time; Close may be called from any goroutine and fails an in-flight search
// with ErrCanceled.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	opt    Options
	logger *zap.Logger

	lines   chan string
	readErr error

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	writeMu sync.Mutex

	mu    sync.Mutex
	busy  bool
	dirty bool
}

// NewSession starts the engine binary and completes the handshake.
func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}

	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := newSession(stdin, stdoutPipe, opt)
	s.cmd = cmd
	s.logger = s.logger.With(zap.String("binary", binaryPath), zap.Int("pid", cmd.Process.Pid))
	if err := s.initialize(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Attach runs the handshake over an existing transport instead of a child
// process. stdout is closed on Close when it implements io.Closer.
func Attach(ctx context.Context, stdin io.WriteCloser, stdout io.Reader, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	s := newSession(stdin, stdout, opt)
	if err := s.initialize(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func newSession(stdin io.WriteCloser, stdout io.Reader, opt Options) *Session {
	s := &Session{
		stdin:  stdin,
		stdout: stdout,
		opt:    opt.withDefaults(),
		logger: obslog.L().Named("uci"),
		lines:  make(chan string, lineBuffer),
		closed: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Session) pump() {
	defer close(s.lines)
	sc := bufio.NewScanner(s.stdout)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case s.lines <- line:
		case <-s.closed:
			return
		}
	}
	s.readErr = sc.Err()
}

func (s *Session) initialize(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, s.opt.InitTimeout)
	defer cancel()

	if err := s.send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return s.timeoutAs(ctx, err, ErrInitTimeout, "wait uciok")
	}

	if err := s.applyOptions(); err != nil {
		return err
	}

	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return s.timeoutAs(ctx, err, ErrInitTimeout, "wait readyok")
	}
	s.logger.Debug("engine handshake complete")
	return nil
}

func (s *Session) applyOptions() error {
	// Skill Level은 엔진 기본값이 최고 강도라 매 세션마다 명시적으로 보낸다.
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d", s.opt.Threads),
		fmt.Sprintf("setoption name Hash value %d", s.opt.HashMB),
		fmt.Sprintf("setoption name Skill Level value %d", s.opt.SkillLevel),
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

// SetOption sends a single setoption command.
func (s *Session) SetOption(name, value string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("option name required")
	}
	return s.send(fmt.Sprintf("setoption name %s value %s", name, value))
}

// Search runs one go command and waits for bestmove.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if !s.acquire() {
		return SearchResponse{}, ErrEngineBusy
	}
	defer s.release()

	if s.isClosed() {
		return SearchResponse{}, ErrCanceled
	}

	if s.needsSync() {
		if err := s.EnsureReady(ctx); err != nil {
			return SearchResponse{}, fmt.Errorf("resync after aborted search: %w", err)
		}
		s.markDirty(false)
	}

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}
	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	goCmd := strings.Join(goTokens, " ")

	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}
	start := time.Now()
	if err := s.send(goCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opt.SearchTimeout)
	defer cancel()

	var info Info
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			if !errors.Is(err, ErrCanceled) && !errors.Is(err, ErrEngineExited) {
				s.abortSearch()
			}
			s.logger.Warn("engine search failed",
				zap.String("position", positionCmd),
				zap.String("go", goCmd),
				zap.Error(err),
			)
			return SearchResponse{}, s.timeoutAs(ctx, err, ErrSearchTimeout, "read bestmove")
		}

		switch {
		case strings.HasPrefix(line, "info "):
			if parsed, ok := parseInfo(line); ok {
				info = parsed
			}
		case strings.HasPrefix(line, "bestmove"):
			return parseBestMove(line, info, time.Since(start))
		}
	}
}

func parseBestMove(line string, info Info, took time.Duration) (SearchResponse, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return SearchResponse{}, ErrNoLegalMoves
	}
	move := strings.ToLower(parts[1])
	if move == "(none)" || move == "none" || move == "0000" {
		return SearchResponse{}, ErrNoLegalMoves
	}
	resp := SearchResponse{BestMove: move, Info: info, Duration: took}
	if len(parts) >= 4 && parts[2] == "ponder" {
		resp.Ponder = strings.ToLower(parts[3])
	}
	return resp, nil
}

// abortSearch stops a search whose result nobody will read. The next search
// drains the stale bestmove through an isready round trip.
func (s *Session) abortSearch() {
	s.markDirty(true)
	if err := s.send("stop"); err != nil {
		s.logger.Debug("send stop failed", zap.Error(err))
	}
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// NewGame tells the engine a fresh game begins.
func (s *Session) NewGame(ctx context.Context) error {
	if !s.acquire() {
		return ErrEngineBusy
	}
	defer s.release()

	if err := s.send("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.markDirty(false)
	return nil
}

// Close terminates the engine. Safe to call more than once and concurrently
// with Search.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		if s.stdin != nil {
			_, _ = io.WriteString(s.stdin, "quit\n")
		}
		close(s.closed)
		if s.stdin != nil {
			_ = s.stdin.Close()
		}
		s.writeMu.Unlock()

		if c, ok := s.stdout.(io.Closer); ok && s.cmd == nil {
			_ = c.Close()
		}
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			if err := s.cmd.Wait(); err != nil && !isKilled(err) {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// needsSync: 중단된 탐색의 bestmove가 아직 파이프에 남아 있을 수 있음.
func (s *Session) needsSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) markDirty(v bool) {
	s.mu.Lock()
	s.dirty = v
	s.mu.Unlock()
}

func (s *Session) send(msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isClosed() {
		return ErrCanceled
	}
	_, err := io.WriteString(s.stdin, msg+"\n")
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-s.closed:
		return "", ErrCanceled
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			if s.isClosed() {
				return "", ErrCanceled
			}
			if s.readErr != nil {
				return "", fmt.Errorf("%w: %v", ErrEngineExited, s.readErr)
			}
			return "", ErrEngineExited
		}
		return line, nil
	}
}

// timeoutAs maps a local deadline to the given sentinel, and a cancelled
// parent context to ErrCanceled.
func (s *Session) timeoutAs(parent context.Context, err, sentinel error, op string) error {
	switch {
	case errors.Is(err, ErrCanceled), errors.Is(err, ErrEngineExited):
		return fmt.Errorf("%s: %w", op, err)
	case parent.Err() != nil:
		return fmt.Errorf("%s: %w: %w", op, ErrCanceled, parent.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, sentinel)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(strings.TrimSpace(fen))
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return sb.String()
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func parseInfo(line string) (Info, bool) {
	parts := strings.Fields(line)
	var (
		info Info
		seen bool
	)
	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					info.Depth = v
					seen = true
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				v, err := strconv.Atoi(parts[i+2])
				if err == nil {
					switch parts[i+1] {
					case "cp":
						info.EvalCP = v
					case "mate":
						const mateValue = 30000
						if v >= 0 {
							info.EvalCP = mateValue
						} else {
							info.EvalCP = -mateValue
						}
					}
					seen = true
				}
				i += 2
			}
		case "pv":
			info.PV = append([]string(nil), parts[i+1:]...)
			i = len(parts)
		}
	}
	return info, seen
}
