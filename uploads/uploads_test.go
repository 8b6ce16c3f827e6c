package uploads

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"proofcheck/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxSize int64) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), maxSize)
	require.NoError(t, err)
	return s
}

func upload(name, content string) Upload {
	return Upload{Filename: name, Content: strings.NewReader(content)}
}

func bucketFiles(t *testing.T, s *Store, bucket string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(s.baseDir, bucket))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestValidate(t *testing.T) {
	ok := []Upload{upload("a.png", "x"), upload("b.JPG", "y")}
	assert.NoError(t, Validate(ok, 1, 3))

	err := Validate(nil, 1, 3)
	assert.ErrorIs(t, err, ErrTooManyFiles)

	four := []Upload{upload("1.png", "x"), upload("2.png", "x"), upload("3.png", "x"), upload("4.png", "x")}
	assert.ErrorIs(t, Validate(four, 1, 3), ErrTooManyFiles)

	err = Validate([]Upload{upload("a.png", "x"), upload("notes.txt", "x")}, 1, 3)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "image 2")
	assert.Contains(t, err.Error(), ".jpeg .jpg .png")

	assert.ErrorIs(t, Validate([]Upload{{Filename: " "}}, 1, 3), ErrEmptyFile)
}

func TestSecureFilename(t *testing.T) {
	assert.Equal(t, "passwd", SecureFilename("../../etc/passwd"))
	assert.Equal(t, "my_photo.png", SecureFilename("my photo.png"))
	assert.Equal(t, "evil.png", SecureFilename(`C:\temp\evil.png`))
	assert.Equal(t, "a1b2_1_x.jpg", SecureFilename("a1b2_1_x.jpg"))
}

func TestSaveWritesAllFiles(t *testing.T) {
	s := newTestStore(t, 0)

	saved, err := s.Save(SubmissionsBucket, "ab12cd34", []Upload{
		upload("front.png", "one"),
		upload("back side.jpg", "two"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ab12cd34_1_front.png", "ab12cd34_2_back_side.jpg"}, saved)

	data, err := os.ReadFile(s.Path(SubmissionsBucket, saved[1]))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestSaveKeepsPrefixForPathNames(t *testing.T) {
	s := newTestStore(t, 0)

	first, err := s.Save(SubmissionsBucket, "aaaa1111", []Upload{upload(`C:\Users\ann\photo.jpg`, "ann")})
	require.NoError(t, err)
	second, err := s.Save(SubmissionsBucket, "bbbb2222", []Upload{upload(`C:\Users\bob\photo.jpg`, "bob")})
	require.NoError(t, err)

	assert.Equal(t, []string{"aaaa1111_1_photo.jpg"}, first)
	assert.Equal(t, []string{"bbbb2222_1_photo.jpg"}, second)
	assert.ElementsMatch(t, []string{"aaaa1111_1_photo.jpg", "bbbb2222_1_photo.jpg"}, bucketFiles(t, s, SubmissionsBucket))

	data, err := os.ReadFile(s.Path(SubmissionsBucket, first[0]))
	require.NoError(t, err)
	assert.Equal(t, "ann", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSaveIsAllOrNothing(t *testing.T) {
	s := newTestStore(t, 0)

	_, err := s.Save(SubmissionsBucket, "id", []Upload{
		upload("ok.png", "data"),
		{Filename: "broken.png", Content: io.MultiReader(strings.NewReader("par"), failingReader{})},
	})
	require.Error(t, err)
	assert.Empty(t, bucketFiles(t, s, SubmissionsBucket))
}

func TestSaveEnforcesMaxSize(t *testing.T) {
	s := newTestStore(t, 4)

	_, err := s.Save(TasksBucket, "t", []Upload{upload("big.png", "12345")})
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, bucketFiles(t, s, TasksBucket))

	saved, err := s.Save(TasksBucket, "t", []Upload{upload("fits.png", "1234")})
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestSaveRejectsEmptyFile(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.Save(TasksBucket, "t", []Upload{{Filename: "empty.png", Content: &bytes.Buffer{}}})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestStageRemovalCommit(t *testing.T) {
	s := newTestStore(t, 0)
	saved, err := s.Save(TasksBucket, "task", []Upload{upload("ref.png", "r")})
	require.NoError(t, err)
	proofs, err := s.Save(SubmissionsBucket, "sub", []Upload{upload("p.png", "p")})
	require.NoError(t, err)

	pending, err := s.StageRemoval([]types.StoredFile{
		{Bucket: TasksBucket, Name: saved[0]},
		{Bucket: SubmissionsBucket, Name: proofs[0]},
		{Bucket: SubmissionsBucket, Name: "never-existed.png"},
	})
	require.NoError(t, err)

	assert.NoFileExists(t, s.Path(TasksBucket, saved[0]))
	assert.NoFileExists(t, s.Path(SubmissionsBucket, proofs[0]))

	require.NoError(t, pending.Commit())
	entries, err := os.ReadDir(filepath.Join(s.baseDir, trashDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStageRemovalRollback(t *testing.T) {
	s := newTestStore(t, 0)
	saved, err := s.Save(SubmissionsBucket, "sub", []Upload{upload("a.png", "a"), upload("b.png", "b")})
	require.NoError(t, err)

	files := []types.StoredFile{
		{Bucket: SubmissionsBucket, Name: saved[0]},
		{Bucket: SubmissionsBucket, Name: saved[1]},
	}
	pending, err := s.StageRemoval(files)
	require.NoError(t, err)
	require.NoError(t, pending.Rollback())

	for _, name := range saved {
		assert.FileExists(t, s.Path(SubmissionsBucket, name))
	}
	// a second call is a no-op
	assert.NoError(t, pending.Commit())
	assert.FileExists(t, s.Path(SubmissionsBucket, saved[0]))
}
