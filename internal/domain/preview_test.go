package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rentline/internal/domain"
)

func TestPreviewText(t *testing.T) {
	t.Run("ShortContentPassesThrough", func(t *testing.T) {
		assert.Equal(t, "see you at 5", domain.PreviewText("see you at 5", nil))
	})

	t.Run("LongContentTruncatedWithEllipsis", func(t *testing.T) {
		long := strings.Repeat("a", 150)
		got := domain.PreviewText(long, nil)
		assert.Equal(t, 100, len([]rune(got)))
		assert.True(t, strings.HasSuffix(got, "…"))
	})

	t.Run("ExactLimitNotTruncated", func(t *testing.T) {
		exact := strings.Repeat("b", 100)
		assert.Equal(t, exact, domain.PreviewText(exact, nil))
	})

	t.Run("MultibyteCountedAsRunes", func(t *testing.T) {
		long := strings.Repeat("გ", 150)
		got := domain.PreviewText(long, nil)
		assert.Equal(t, 100, len([]rune(got)))
	})

	t.Run("EmptyContentFallsBackToAttachmentName", func(t *testing.T) {
		name := "floorplan.pdf"
		assert.Equal(t, "floorplan.pdf", domain.PreviewText("", &name))
	})

	t.Run("ContentWinsOverAttachmentName", func(t *testing.T) {
		name := "floorplan.pdf"
		assert.Equal(t, "here it is", domain.PreviewText("here it is", &name))
	})
}

func TestAttachmentValidate(t *testing.T) {
	valid := domain.Attachment{URL: "/uploads/x.png", Type: domain.AttachmentImage, Name: "x.png", Size: 10}

	t.Run("CompleteGroupValid", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("MissingFieldsRejected", func(t *testing.T) {
		cases := map[string]domain.Attachment{
			"no url":    {Type: domain.AttachmentImage, Name: "x.png", Size: 10},
			"no name":   {URL: "/uploads/x.png", Type: domain.AttachmentImage, Size: 10},
			"zero size": {URL: "/uploads/x.png", Type: domain.AttachmentImage, Name: "x.png"},
			"bad type":  {URL: "/uploads/x.png", Type: "archive", Name: "x.png", Size: 10},
		}
		for name, att := range cases {
			att := att
			t.Run(name, func(t *testing.T) {
				assert.ErrorIs(t, att.Validate(), domain.ErrInvalidInput)
			})
		}
	})
}

func TestMessageBefore(t *testing.T) {
	a := &domain.Message{ID: 1, CreatedAt: mustTime(t, "2026-03-01T12:00:00Z")}
	b := &domain.Message{ID: 2, CreatedAt: mustTime(t, "2026-03-01T12:01:00Z")}
	c := &domain.Message{ID: 3, CreatedAt: a.CreatedAt}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, a.Before(c), "equal timestamps order by id")
	assert.False(t, c.Before(a))
}

func TestConversationParticipants(t *testing.T) {
	c := &domain.Conversation{ID: 1, Participant1ID: 10, Participant2ID: 20}

	assert.Equal(t, int64(20), c.OtherParticipant(10))
	assert.Equal(t, int64(10), c.OtherParticipant(20))
	assert.True(t, c.HasParticipant(10))
	assert.True(t, c.HasParticipant(20))
	assert.False(t, c.HasParticipant(30))
}

func TestAttachmentUploadType(t *testing.T) {
	img := &domain.AttachmentUpload{Name: "a.png", ContentType: "image/png"}
	doc := &domain.AttachmentUpload{Name: "a.pdf", ContentType: "application/pdf"}

	assert.Equal(t, domain.AttachmentImage, img.Type())
	assert.Equal(t, domain.AttachmentDocument, doc.Type())
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return parsed
}
