package services

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JetBrains/space-slack-unfurls/internal/slack"
	"github.com/JetBrains/space-slack-unfurls/internal/space"
	"github.com/JetBrains/space-slack-unfurls/internal/tokens"
)

func testSpaceUserClient(api *fakeSpaceAPI) *spaceUserClient {
	return &spaceUserClient{
		mgr:     tokens.New(&tokens.Credential{AccessToken: "tok", RefreshToken: "ref"}, tokens.Strategy{}),
		api:     api,
		logoURL: "https://unfurls.example.com/static/space.jpeg",
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	return parsed
}

func blockText(t *testing.T, block slack.Block) string {
	t.Helper()
	if block.Text != nil {
		return block.Text.Text
	}
	for _, el := range block.Elements {
		if text, ok := el.(slack.TextObject); ok {
			return text.Text
		}
	}
	t.Fatal("block has no text element")
	return ""
}

func TestMatchLinkDispatch(t *testing.T) {
	tests := []struct {
		path    string
		matched bool
		group   string
	}{
		{"/p/KEY/issues/42", true, "KEY"},
		{"/p/my-proj/issues/42", true, "my-proj"}, // keys match case-insensitively
		{"/p/1KEY/issues/42", false, ""},          // keys never start with a digit
		{"/p/KEY/reviews/7", true, "KEY"},
		{"/p/KEY/reviews/7/timeline", true, "KEY"},
		{"/im/issue/2wbKY04CqB9W", true, "2wbKY04CqB9W"},
		{"/im/review/3FaUe33fJ8Kq", true, "3FaUe33fJ8Kq"},
		{"/im/general", true, "general"},
		{"/p/KEY/documents/abc", false, ""},
		{"/settings", false, ""},
	}
	for _, tc := range tests {
		_, groups, ok := matchLink(mustParse(t, "https://space.example.org"+tc.path))
		assert.Equal(t, tc.matched, ok, tc.path)
		if tc.matched {
			assert.Equal(t, tc.group, groups[1], tc.path)
		}
	}
}

func TestMatchLinkIssuePathWinsOverChatPath(t *testing.T) {
	// "/im/issue/..." satisfies the generic channel pattern too; the
	// issue matcher must take it first.
	provide, _, ok := matchLink(mustParse(t, "https://space.example.org/im/issue/2wbKY04CqB9W"))
	require.True(t, ok)

	api := newFakeSpaceAPI()
	api.channels[space.ChannelForIssue("2wbKY04CqB9W")] = &space.Channel{
		Contact: space.ChannelContact{Key: "issue-chan", DefaultName: "issue channel"},
		Content: &space.ChannelContent{
			ProjectKey: &space.ProjectKey{Key: "key"},
			Issue:      &space.Issue{Number: 5, Title: "From channel"},
		},
	}
	unfurl, err := provide(context.Background(), mustParse(t, "https://space.example.org/im/issue/2wbKY04CqB9W"), []string{"", "2wbKY04CqB9W"}, testSpaceUserClient(api))
	require.NoError(t, err)
	require.NotNil(t, unfurl)
	assert.Contains(t, blockText(t, unfurl.Blocks[0]), "*KEY-T-5* From channel")
}

func TestIssueUnfurlTruncatesDescription(t *testing.T) {
	long := make([]byte, 4000)
	for i := range long {
		long[i] = 'x'
	}
	api := newFakeSpaceAPI()
	api.issues["KEY/42"] = &space.Issue{Number: 42, Title: "Long one", Description: string(long)}

	target := mustParse(t, "https://space.example.org/p/KEY/issues/42")
	unfurl, err := issueByDirectLink(context.Background(), target, []string{"", "KEY", "42"}, testSpaceUserClient(api))
	require.NoError(t, err)
	require.Len(t, unfurl.Blocks, 3)
	assert.Len(t, []rune(blockText(t, unfurl.Blocks[1])), descriptionLimit)
}

func TestReviewUnfurlMergeRequest(t *testing.T) {
	api := newFakeSpaceAPI()
	api.reviews["KEY/7"] = &space.CodeReview{
		ClassName: "MergeRequestRecord",
		Number:    7,
		Title:     "Add retries",
		State:     "Opened",
		Project:   space.ProjectKey{Key: "KEY"},
		CreatedBy: &space.ReviewUser{Name: space.UserName{FirstName: "Ada", LastName: "Lovelace"}},
	}

	target := mustParse(t, "https://space.example.org/p/KEY/reviews/7")
	unfurl, err := reviewByDirectLink(context.Background(), target, []string{"", "KEY", "7"}, testSpaceUserClient(api))
	require.NoError(t, err)
	require.Len(t, unfurl.Blocks, 3)
	assert.Contains(t, blockText(t, unfurl.Blocks[0]), "*KEY-MR-7* Add retries")
	assert.Equal(t, "Opened, authored by *Ada Lovelace*", blockText(t, unfurl.Blocks[1]))
	assert.Contains(t, blockText(t, unfurl.Blocks[2]), "JetBrains Space merge request in <https://space.example.org/p/KEY|KEY> project")
}

func TestReviewUnfurlCommitSetReview(t *testing.T) {
	api := newFakeSpaceAPI()
	api.reviews["KEY/9"] = &space.CodeReview{
		ClassName: "CommitSetReviewRecord",
		Number:    9,
		Title:     "Hotfix batch",
		State:     "Closed",
		Project:   space.ProjectKey{Key: "KEY"},
		CreatedBy: &space.ReviewUser{Name: space.UserName{FirstName: "Grace", LastName: "Hopper"}},
	}

	target := mustParse(t, "https://space.example.org/p/KEY/reviews/9")
	unfurl, err := reviewByDirectLink(context.Background(), target, []string{"", "KEY", "9"}, testSpaceUserClient(api))
	require.NoError(t, err)
	assert.Contains(t, blockText(t, unfurl.Blocks[0]), "*KEY-CR-9* Hotfix batch")
	assert.Equal(t, "Authored by *Grace Hopper*, Closed", blockText(t, unfurl.Blocks[1]))
	assert.Contains(t, blockText(t, unfurl.Blocks[2]), "JetBrains Space code review in")
}

func TestReviewChannelLinkWithMessageUnfurlsTheMessage(t *testing.T) {
	api := newFakeSpaceAPI()
	identifier := space.ChannelForReview("3FaUe33fJ8Kq")
	api.channels[identifier] = &space.Channel{
		Contact: space.ChannelContact{Key: "review-chan", DefaultName: "review feed"},
	}
	api.chatMsgs[identifier+"/msg-1"] = &space.ChatMessage{
		Author:  space.MessageAuthor{Name: "Ada Lovelace"},
		Created: "2022-08-08T23:06:40Z",
		Text:    "looks good",
	}

	target := mustParse(t, "https://space.example.org/im/review/3FaUe33fJ8Kq?message=msg-1")
	unfurl, err := reviewByChannel(context.Background(), target, []string{"", "3FaUe33fJ8Kq"}, testSpaceUserClient(api))
	require.NoError(t, err)
	require.Len(t, unfurl.Blocks, 3)
	assert.Equal(t, "*Ada Lovelace* in <https://space.example.org/im/review-chan|review feed> (2022-08-08 23:06)", blockText(t, unfurl.Blocks[0]))
	assert.Equal(t, "looks good\n", blockText(t, unfurl.Blocks[1]))
	assert.Contains(t, blockText(t, unfurl.Blocks[2]), "View message")
}

func TestChatChannelCard(t *testing.T) {
	api := newFakeSpaceAPI()
	api.channels[space.ChannelContactKey("general")] = &space.Channel{
		Contact: space.ChannelContact{
			Key:         "general",
			DefaultName: "general",
			Ext:         &space.ChannelContactExt{Name: "General chatter"},
		},
	}

	target := mustParse(t, "https://space.example.org/im/general")
	unfurl, err := chatByContactKey(context.Background(), target, []string{"", "general"}, testSpaceUserClient(api))
	require.NoError(t, err)
	require.Len(t, unfurl.Blocks, 1)
	assert.Equal(t, "<https://space.example.org/im/general|General chatter> in JetBrains Space", blockText(t, unfurl.Blocks[0]))

	image, ok := unfurl.Blocks[0].Elements[0].(slack.ImageElement)
	require.True(t, ok)
	assert.Equal(t, "https://unfurls.example.com/static/space.jpeg", image.ImageURL)
}

func TestChatChannelIDParamOverridesContactKey(t *testing.T) {
	api := newFakeSpaceAPI()
	api.channels[space.ChannelID("chan-123")] = &space.Channel{
		Contact: space.ChannelContact{Key: "general", DefaultName: "general"},
	}

	target := mustParse(t, "https://space.example.org/im/general?channel=chan-123")
	unfurl, err := chatByContactKey(context.Background(), target, []string{"", "general"}, testSpaceUserClient(api))
	require.NoError(t, err)
	require.NotNil(t, unfurl)
}

func TestIssueChannelLinkWithMessageIsNotSupported(t *testing.T) {
	target := mustParse(t, "https://space.example.org/im/issue/2wbKY04CqB9W?message=msg-1")
	unfurl, err := issueByChannel(context.Background(), target, []string{"", "2wbKY04CqB9W"}, testSpaceUserClient(newFakeSpaceAPI()))
	require.NoError(t, err)
	assert.Nil(t, unfurl)
}
