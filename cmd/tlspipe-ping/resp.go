package main

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ReplyType is the RESP type prefix of a reply.
type ReplyType byte

// RESP reply types.
const (
	ReplySimpleString ReplyType = '+'
	ReplyError        ReplyType = '-'
	ReplyInteger      ReplyType = ':'
	ReplyBulkString   ReplyType = '$'
	ReplyArray        ReplyType = '*'
)

// String returns the reply type name.
func (t ReplyType) String() string {
	switch t {
	case ReplySimpleString:
		return "SimpleString"
	case ReplyError:
		return "Error"
	case ReplyInteger:
		return "Integer"
	case ReplyBulkString:
		return "BulkString"
	case ReplyArray:
		return "Array"
	default:
		return fmt.Sprintf("Unknown(%q)", byte(t))
	}
}

// maxBulkLength is the largest bulk string Redis accepts.
const maxBulkLength = 512 << 20

// maxArrayDepth bounds nested arrays.
const maxArrayDepth = 32

// ErrProtocol reports a malformed RESP reply.
var ErrProtocol = errors.New("resp protocol error")

var crlf = []byte("\r\n")

// Reply is one parsed RESP reply. It owns its data.
type Reply struct {
	Type  ReplyType
	Str   string
	Int   int64
	Null  bool
	Elems []Reply
}

// String formats the reply the way redis-cli does.
func (r Reply) String() string {
	var b strings.Builder
	r.format(&b, "")
	return b.String()
}

func (r Reply) format(b *strings.Builder, indent string) {
	switch {
	case r.Null:
		b.WriteString("(nil)")
	case r.Type == ReplyError:
		b.WriteString("(error) " + r.Str)
	case r.Type == ReplyInteger:
		b.WriteString("(integer) " + strconv.FormatInt(r.Int, 10))
	case r.Type == ReplyBulkString:
		b.WriteString(strconv.Quote(r.Str))
	case r.Type == ReplyArray:
		if len(r.Elems) == 0 {
			b.WriteString("(empty array)")
			return
		}
		for i, e := range r.Elems {
			if i > 0 {
				b.WriteString("\n" + indent)
			}
			prefix := strconv.Itoa(i+1) + ") "
			b.WriteString(prefix)
			e.format(b, indent+strings.Repeat(" ", len(prefix)))
		}
	default:
		b.WriteString(r.Str)
	}
}

// IsPong reports whether r is the simple string PONG.
func (r Reply) IsPong() bool {
	return r.Type == ReplySimpleString && strings.EqualFold(r.Str, "PONG")
}

// ParseReply parses one reply from the start of buf. It returns the
// number of bytes consumed, or ok=false when buf holds only part of a
// reply.
func ParseReply(buf []byte) (reply Reply, n int, ok bool, err error) {
	return parseReply(buf, 0)
}

func parseReply(buf []byte, depth int) (Reply, int, bool, error) {
	if len(buf) == 0 {
		return Reply{}, 0, false, nil
	}

	t := ReplyType(buf[0])
	line, end, ok := sliceLine(buf[1:])
	if !ok {
		return Reply{}, 0, false, nil
	}
	end++ // type prefix

	switch t {
	case ReplySimpleString, ReplyError:
		return Reply{Type: t, Str: string(line)}, end, true, nil

	case ReplyInteger:
		v, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return Reply{}, 0, false, fmt.Errorf("%w: invalid integer %q", ErrProtocol, line)
		}
		return Reply{Type: t, Int: v}, end, true, nil

	case ReplyBulkString:
		size, err := parseLength(line, maxBulkLength)
		if err != nil {
			return Reply{}, 0, false, err
		}
		if size < 0 {
			return Reply{Type: t, Null: true}, end, true, nil
		}
		rest := buf[end:]
		if len(rest) < size+len(crlf) {
			return Reply{}, 0, false, nil
		}
		if !bytes.Equal(rest[size:size+len(crlf)], crlf) {
			return Reply{}, 0, false, fmt.Errorf("%w: missing terminator after bulk string", ErrProtocol)
		}
		return Reply{Type: t, Str: string(rest[:size])}, end + size + len(crlf), true, nil

	case ReplyArray:
		if depth >= maxArrayDepth {
			return Reply{}, 0, false, fmt.Errorf("%w: arrays nested too deeply", ErrProtocol)
		}
		count, err := parseLength(line, maxBulkLength)
		if err != nil {
			return Reply{}, 0, false, err
		}
		if count < 0 {
			return Reply{Type: t, Null: true}, end, true, nil
		}
		r := Reply{Type: t, Elems: make([]Reply, 0, min(count, 64))}
		for range count {
			e, n, ok, err := parseReply(buf[end:], depth+1)
			if err != nil || !ok {
				return Reply{}, 0, false, err
			}
			r.Elems = append(r.Elems, e)
			end += n
		}
		return r, end, true, nil

	default:
		return Reply{}, 0, false, fmt.Errorf("%w: unknown message prefix %q", ErrProtocol, byte(t))
	}
}

// sliceLine returns the bytes before the first CRLF and the offset just
// after it.
func sliceLine(buf []byte) ([]byte, int, bool) {
	i := bytes.Index(buf, crlf)
	if i < 0 {
		return nil, 0, false
	}
	return buf[:i], i + len(crlf), true
}

func parseLength(line []byte, limit int) (int, error) {
	v, err := strconv.Atoi(string(line))
	if err != nil || v < -1 || v > limit {
		return 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, line)
	}
	return v, nil
}

// AppendCommand appends args to dst as a RESP array of bulk strings.
func AppendCommand(dst []byte, args ...string) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(args)), 10)
	dst = append(dst, crlf...)
	for _, a := range args {
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(a)), 10)
		dst = append(dst, crlf...)
		dst = append(dst, a...)
		dst = append(dst, crlf...)
	}
	return dst
}

// SplitCommand splits a command line into arguments. Double-quoted
// arguments support backslash escapes; single-quoted ones are literal.
func SplitCommand(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   byte
		escaped bool
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			switch c {
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			case 't':
				cur.WriteByte('\t')
			default:
				cur.WriteByte(c)
			}
			escaped = false
		case quote == '"' && c == '\\':
			escaped = true
		case quote != 0 && c == quote:
			quote = 0
			if i+1 < len(line) && line[i+1] != ' ' && line[i+1] != '\t' {
				return nil, fmt.Errorf("closing quote must be followed by a space")
			}
		case quote != 0:
			cur.WriteByte(c)
		case c == '"' || c == '\'':
			quote = c
			inArg = true
		case c == ' ' || c == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteByte(c)
			inArg = true
		}
	}

	if quote != 0 || escaped {
		return nil, fmt.Errorf("unbalanced quotes in %q", line)
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
