package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Reply
		n     int
	}{
		{"simple string", "+PONG\r\n", Reply{Type: ReplySimpleString, Str: "PONG"}, 7},
		{"error", "-ERR unknown\r\n", Reply{Type: ReplyError, Str: "ERR unknown"}, 14},
		{"integer", ":-42\r\n", Reply{Type: ReplyInteger, Int: -42}, 6},
		{"bulk string", "$5\r\nhello\r\n", Reply{Type: ReplyBulkString, Str: "hello"}, 11},
		{"bulk with crlf", "$4\r\na\r\nb\r\n", Reply{Type: ReplyBulkString, Str: "a\r\nb"}, 10},
		{"empty bulk", "$0\r\n\r\n", Reply{Type: ReplyBulkString, Str: ""}, 6},
		{"null bulk", "$-1\r\n", Reply{Type: ReplyBulkString, Null: true}, 5},
		{"null array", "*-1\r\n", Reply{Type: ReplyArray, Null: true}, 5},
		{"array", "*2\r\n:1\r\n+two\r\n", Reply{Type: ReplyArray, Elems: []Reply{
			{Type: ReplyInteger, Int: 1},
			{Type: ReplySimpleString, Str: "two"},
		}}, 14},
		{"trailing data", "+OK\r\n+PONG\r\n", Reply{Type: ReplySimpleString, Str: "OK"}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, ok, err := ParseReply([]byte(tt.input))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, tt.want.Type, got.Type)
			assert.Equal(t, tt.want.Str, got.Str)
			assert.Equal(t, tt.want.Int, got.Int)
			assert.Equal(t, tt.want.Null, got.Null)
			assert.Len(t, got.Elems, len(tt.want.Elems))
		})
	}
}

func TestParseReplyIncomplete(t *testing.T) {
	for _, input := range []string{
		"",
		"+PON",
		"+PONG\r",
		"$5\r\nhel",
		"$5\r\nhello\r",
		"*2\r\n:1\r\n",
		"*2\r\n:1\r\n$3\r\nab",
	} {
		_, n, ok, err := ParseReply([]byte(input))
		if err != nil {
			t.Fatalf("ParseReply(%q) error = %v", input, err)
		}
		if ok || n != 0 {
			t.Errorf("ParseReply(%q) = ok %v, n %d; want incomplete", input, ok, n)
		}
	}
}

func TestParseReplyMalformed(t *testing.T) {
	for _, input := range []string{
		"!oops\r\n",
		":12a\r\n",
		"$abc\r\n",
		"$-2\r\n",
		"$3\r\nabcXY",
		"*x\r\n",
	} {
		_, _, _, err := ParseReply([]byte(input))
		if !errors.Is(err, ErrProtocol) {
			t.Errorf("ParseReply(%q) error = %v, want ErrProtocol", input, err)
		}
	}
}

func TestParseReplyDepthLimit(t *testing.T) {
	var input []byte
	for range maxArrayDepth + 1 {
		input = append(input, "*1\r\n"...)
	}
	input = append(input, ":1\r\n"...)

	_, _, _, err := ParseReply(input)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestReplyString(t *testing.T) {
	tests := []struct {
		reply Reply
		want  string
	}{
		{Reply{Type: ReplySimpleString, Str: "OK"}, "OK"},
		{Reply{Type: ReplyError, Str: "ERR nope"}, "(error) ERR nope"},
		{Reply{Type: ReplyInteger, Int: 7}, "(integer) 7"},
		{Reply{Type: ReplyBulkString, Str: "noisy in here"}, `"noisy in here"`},
		{Reply{Type: ReplyBulkString, Null: true}, "(nil)"},
		{Reply{Type: ReplyArray}, "(empty array)"},
		{Reply{Type: ReplyArray, Elems: []Reply{
			{Type: ReplyBulkString, Str: "a"},
			{Type: ReplyArray, Elems: []Reply{
				{Type: ReplyInteger, Int: 1},
				{Type: ReplyInteger, Int: 2},
			}},
		}}, "1) \"a\"\n2) 1) (integer) 1\n   2) (integer) 2"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.reply.String())
	}
}

func TestReplyIsPong(t *testing.T) {
	assert.True(t, Reply{Type: ReplySimpleString, Str: "PONG"}.IsPong())
	assert.False(t, Reply{Type: ReplyBulkString, Str: "PONG"}.IsPong())
	assert.False(t, Reply{Type: ReplySimpleString, Str: "OK"}.IsPong())
}

func TestReplyTypeString(t *testing.T) {
	assert.Equal(t, "SimpleString", ReplySimpleString.String())
	assert.Equal(t, "BulkString", ReplyBulkString.String())
	assert.Equal(t, "Unknown('!')", ReplyType('!').String())
}

func TestAppendCommand(t *testing.T) {
	got := AppendCommand(nil, "ECHO", "noisy in here")
	assert.Equal(t, "*2\r\n$4\r\nECHO\r\n$13\r\nnoisy in here\r\n", string(got))

	got = AppendCommand([]byte("x"), "PING")
	assert.Equal(t, "x*1\r\n$4\r\nPING\r\n", string(got))
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"PING", []string{"PING"}},
		{"  SET  key   value ", []string{"SET", "key", "value"}},
		{`ECHO "noisy in here"`, []string{"ECHO", "noisy in here"}},
		{`SET k "a\"b\n"`, []string{"SET", "k", "a\"b\n"}},
		{`SET k 'a\nb'`, []string{"SET", "k", `a\nb`}},
		{`SET k ""`, []string{"SET", "k", ""}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := SplitCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitCommandErrors(t *testing.T) {
	for _, line := range []string{
		`ECHO "unterminated`,
		`ECHO 'unterminated`,
		`ECHO "a"b`,
	} {
		if _, err := SplitCommand(line); err == nil {
			t.Errorf("SplitCommand(%q) expected error", line)
		}
	}
}
