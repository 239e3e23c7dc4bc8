package achievement

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("pending")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)

	for _, bad := range []string{"", "1", "archived", "Pend"} {
		_, err := ParseStatus(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseType(t *testing.T) {
	ty, err := ParseType(" Software ")
	require.NoError(t, err)
	assert.Equal(t, TypeSoftware, ty)

	_, err = ParseType("essay")
	assert.Error(t, err)
}

func TestContent_NormalizeCountsRunes(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune.
	decomposed := strings.Repeat("e\u0301", MaxTitleLength)
	c := Content{Title: decomposed, Type: TypeOther}.Normalize()

	assert.Equal(t, MaxTitleLength, TextLength(c.Title))
	assert.NoError(t, c.Validate("CreateDraft"))

	c.Title += "x"
	assert.True(t, shared.IsValidation(c.Validate("CreateDraft")))
}

func TestContent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       Content
		wantErr bool
	}{
		{"empty draft", Content{Type: TypeProject}, false},
		{"unknown type", Content{Type: "essay"}, true},
		{"body too long", Content{Type: TypeProject, Body: strings.Repeat("a", MaxBodyLength+1)}, true},
		{"relative media url", Content{Type: TypeProject, MediaRefs: []MediaRef{{URL: "/uploads/a.png"}}}, true},
		{"ftp media url", Content{Type: TypeProject, MediaRefs: []MediaRef{{URL: "ftp://host/a.png"}}}, true},
		{"negative size", Content{Type: TypeProject, MediaRefs: []MediaRef{{URL: "https://h/a.png", Size: -1}}}, true},
		{"valid media", Content{Type: TypeProject, MediaRefs: []MediaRef{{URL: "https://h/a.png", Size: 10}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Normalize().Validate("CreateDraft")
			if tt.wantErr {
				assert.True(t, shared.IsValidation(err), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEmbeddedMedia(t *testing.T) {
	body := `Intro ![diagram](https://cdn.example.com/d.png "Architecture")
and <img class="x" src='https://cdn.example.com/photo.jpg'>
plus ![local](/not/absolute.png) and a [link](https://example.com).`

	refs := EmbeddedMedia(body)
	require.Len(t, refs, 2)
	assert.Equal(t, "https://cdn.example.com/d.png", refs[0].URL)
	assert.Equal(t, "diagram", refs[0].Name)
	assert.Equal(t, "https://cdn.example.com/photo.jpg", refs[1].URL)
}

func TestContent_AttachmentsDeduplicate(t *testing.T) {
	c := Content{
		Body:      "![again](https://cdn.example.com/a.png)",
		Type:      TypeProject,
		MediaRefs: []MediaRef{{URL: "https://cdn.example.com/a.png", Name: "explicit", Size: 42}},
	}
	atts := c.Attachments("a-1", sequentialIDs())
	require.Len(t, atts, 1)
	assert.Equal(t, "explicit", atts[0].Name)
	assert.Equal(t, int64(42), atts[0].Size)
	assert.Equal(t, "a-1", atts[0].AchievementID)
}

func TestPolicy(t *testing.T) {
	student := identity.Principal{ID: "s-1", Role: identity.RoleStudent}
	other := identity.Principal{ID: "s-2", Role: identity.RoleStudent}
	teacher := identity.Principal{ID: "t-1", Role: identity.RoleTeacher}
	admin := identity.Principal{ID: "adm", Role: identity.RoleAdmin}
	a := &Achievement{ID: "a", OwnerID: "s-1"}
	own := &Achievement{ID: "b", OwnerID: "t-1"}

	assert.NoError(t, AuthorizeCreate(student))
	assert.True(t, shared.IsForbidden(AuthorizeCreate(teacher)))

	assert.NoError(t, AuthorizeOwner("Submit", student, a))
	assert.True(t, shared.IsNotFound(AuthorizeOwner("Submit", other, a)))

	assert.NoError(t, AuthorizeReview(teacher, a))
	assert.True(t, shared.IsForbidden(AuthorizeReview(student, a)))
	assert.True(t, shared.IsForbidden(AuthorizeReview(admin, a)))
	assert.True(t, shared.IsForbidden(AuthorizeReview(teacher, own)))

	assert.NoError(t, AuthorizeDelete(admin, a))
	assert.NoError(t, AuthorizeDelete(student, a))
	assert.True(t, shared.IsNotFound(AuthorizeDelete(teacher, a)))

	assert.NoError(t, AuthorizeReadDecisions(teacher, a))
	assert.True(t, shared.IsNotFound(AuthorizeReadDecisions(other, a)))

	assert.NoError(t, AuthorizeReviewViews("Counts", admin))
	assert.True(t, shared.IsForbidden(AuthorizeReviewViews("Counts", student)))
}

func TestChange_Validate(t *testing.T) {
	a := &Achievement{ID: "a", OwnerID: "s", Status: StatusDraft, Type: TypeOther}
	assert.NoError(t, Change{Kind: ChangeInsert, Achievement: a}.Validate())
	assert.Error(t, Change{Kind: ChangeUpdate, Achievement: a}.Validate(), "missing guard")
	assert.Error(t, Change{Kind: ChangeUpdate, Achievement: a, ExpectedStatus: StatusDraft}.Validate(), "missing version")

	a.Version = 3
	guarded := Guard(ChangeUpdate, a, a.Clone())
	assert.NoError(t, guarded.Validate())
	assert.Equal(t, int64(3), guarded.ExpectedVersion)
	assert.Equal(t, StatusDraft, guarded.ExpectedStatus)
	assert.Equal(t, int64(4), guarded.NextVersion())
	assert.Equal(t, int64(1), Change{Kind: ChangeInsert, Achievement: a}.NextVersion())
	assert.Error(t, Change{Kind: ChangeInsert}.Validate())
	assert.Error(t, Change{
		Kind:        ChangeInsert,
		Achievement: a,
		Decision:    &ReviewDecision{AchievementID: "other"},
	}.Validate())
}
