package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestStore(t *testing.T, maxBytes int64) (*Store, *time.Time) {
	t.Helper()
	s, err := NewStore(t.TempDir(), "sms", maxBytes)
	require.NoError(t, err)

	clock := time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestSaveLatestRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, 0)

	content := []byte("Name: Alice\r\nmsg: héllo\x00\n---\n")
	name, err := s.Save("today", bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, "sms_today_20240309_080706.txt", name)

	gotName, got, err := s.Latest("today")
	require.NoError(t, err)
	assert.Equal(t, name, gotName)
	assert.Equal(t, content, got)
}

func TestLatestMissingType(t *testing.T) {
	s, _ := newTestStore(t, 0)

	_, _, err := s.Latest("never")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	recs, err := s.Parsed("never")
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestLatestPicksNewestOfType(t *testing.T) {
	s, clock := newTestStore(t, 0)

	_, err := s.Save("inbox", strings.NewReader("old"))
	require.NoError(t, err)

	*clock = clock.Add(time.Hour)
	_, err = s.Save("inbox", strings.NewReader("new"))
	require.NoError(t, err)

	*clock = clock.Add(time.Hour)
	_, err = s.Save("inbox-2", strings.NewReader("other type"))
	require.NoError(t, err)

	_, got, err := s.Latest("inbox")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestSameSecondUploadOverwrites(t *testing.T) {
	s, _ := newTestStore(t, 0)

	_, err := s.Save("x", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = s.Save("x", strings.NewReader("second"))
	require.NoError(t, err)

	_, got, err := s.Latest("x")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveDefaultsAndValidation(t *testing.T) {
	s, _ := newTestStore(t, 8)

	name, err := s.Save("", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "sms_unknown_"))

	_, err = s.Save("../etc", strings.NewReader("abc"))
	assert.True(t, apperr.IsValidation(err))

	_, err = s.Save("a_b", strings.NewReader("abc"))
	assert.True(t, apperr.IsValidation(err))

	_, err = s.Save("big", strings.NewReader("123456789"))
	assert.True(t, apperr.IsValidation(err))

	_, err = s.Save("fits", strings.NewReader("12345678"))
	assert.NoError(t, err)
}

func TestNamesIgnoresForeignFiles(t *testing.T) {
	s, _ := newTestStore(t, 0)

	for _, n := range []string{"sms_a_notatime.txt", "other_a_20240101_000000.txt", "sms_a_20240101_000000.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(s.dir, n), []byte("x"), 0o644))
	}

	_, _, err := s.Latest("a")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestParse(t *testing.T) {
	text := strings.Join([]string{
		"Name: Alice",
		"Number: +1555",
		"Date: 2024-01-01 10:00",
		"Message: hello there",
		"second line",
		"---",
		"from: Bob",
		"PHONE: +1666",
		"time: yesterday",
		"body: ok",
		"-----",
		"just some noise",
		"without keys",
		"---",
		"",
	}, "\n")

	recs := Parse(text)
	require.Len(t, recs, 2)
	assert.Equal(t, model.ExportRecord{
		Name:   "Alice",
		Number: "+1555",
		Date:   "2024-01-01 10:00",
		Msg:    "hello there\nsecond line",
	}, recs[0])
	assert.Equal(t, model.ExportRecord{Name: "Bob", Number: "+1666", Date: "yesterday", Msg: "ok"}, recs[1])
}

func TestParseEdgeCases(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("---\n---\n"))

	// "--" is not a delimiter
	recs := Parse("msg: a\n--\nmsg: b")
	require.Len(t, recs, 1)
	assert.Equal(t, "a\n--\nb", recs[0].Msg)

	// keys keep the text after the first colon
	recs = Parse("date: 10:30:00\r\nmsg: see: this")
	require.Len(t, recs, 1)
	assert.Equal(t, "10:30:00", recs[0].Date)
	assert.Equal(t, "see: this", recs[0].Msg)
}

func TestParsedUsesLatest(t *testing.T) {
	s, _ := newTestStore(t, 0)

	_, err := s.Save("today", strings.NewReader("name: A\nmsg: hi\n---\nname: B\nmsg: yo\n"))
	require.NoError(t, err)

	recs, err := s.Parsed("today")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "B", recs[1].Name)
}

func TestWriteMessagesXLSX(t *testing.T) {
	msgs := []model.Message{
		{ID: "01", Sender: "+1", Body: "hi", Kind: "inbound", OccurredAt: model.FromMillis(0), ReceivedAt: model.FromMillis(1000)},
		{ID: "02", Sender: "+2", Body: "yo", Kind: "sent", OccurredAt: model.FromMillis(60_000), ReceivedAt: model.FromMillis(61_000)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMessagesXLSX(&buf, msgs))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(messagesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, messageHeadings, rows[0])
	assert.Equal(t, []string{"01", "+1", "hi", "inbound", "1970-01-01T00:00:00Z", "1970-01-01T00:00:01Z"}, rows[1])
	assert.Equal(t, "yo", rows[2][2])
}
