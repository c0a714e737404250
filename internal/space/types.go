package space

// UnfurlQueueItem is one shared link waiting for preview content. Etag
// is the queue cursor: items are fetched strictly after the last
// processed etag.
type UnfurlQueueItem struct {
	ID           string `json:"id"`
	Target       string `json:"target"`
	AuthorUserID string `json:"authorUserId,omitempty"`
	Etag         int64  `json:"etag"`
}

// UnfurlContent is the preview document attached to a queue item. The
// outline is the attribution line, sections carry the body.
type UnfurlContent struct {
	Outline  *UnfurlOutline  `json:"outline,omitempty"`
	Sections []UnfurlSection `json:"sections,omitempty"`
}

type UnfurlOutline struct {
	Icon *Icon  `json:"icon,omitempty"`
	Text string `json:"text"`
}

// Icon references an uploaded icon by name.
type Icon struct {
	Icon string `json:"icon"`
}

type UnfurlSection struct {
	Elements []UnfurlElement `json:"elements"`
}

// UnfurlElement is a polymorphic section element, discriminated by
// className the way the chat message API does it.
type UnfurlElement struct {
	ClassName string          `json:"className"`
	Content   string          `json:"content,omitempty"`
	Elements  []UnfurlElement `json:"elements,omitempty"`
	Text      string          `json:"text,omitempty"`
	Style     string          `json:"style,omitempty"`
	Action    *ButtonAction   `json:"action,omitempty"`
}

// ButtonAction is either a navigation to an URL or a message action
// posted back to the application webhook.
type ButtonAction struct {
	ClassName    string `json:"className"`
	URL          string `json:"url,omitempty"`
	WithBackURL  bool   `json:"withBackUrl,omitempty"`
	OpenInNewTab bool   `json:"openInNewTab,omitempty"`
	ActionID     string `json:"actionId,omitempty"`
	Payload      string `json:"payload,omitempty"`
}

// TextElement builds a markdown text section element.
func TextElement(content string) UnfurlElement {
	return UnfurlElement{ClassName: "MessageText", Content: content}
}

// ControlGroup wraps buttons into a single section element.
func ControlGroup(buttons ...UnfurlElement) UnfurlElement {
	return UnfurlElement{ClassName: "MessageControlGroup", Elements: buttons}
}

// NavigateButton opens an URL, carrying the Space back-url parameter so
// the user returns to the message after authenticating.
func NavigateButton(text, targetURL string) UnfurlElement {
	return UnfurlElement{
		ClassName: "MessageButton",
		Text:      text,
		Style:     "PRIMARY",
		Action: &ButtonAction{
			ClassName:   "NavigateUrlAction",
			URL:         targetURL,
			WithBackURL: true,
		},
	}
}

// PostMessageButton posts an action back to the application webhook.
func PostMessageButton(text, actionID, payload string) UnfurlElement {
	return UnfurlElement{
		ClassName: "MessageButton",
		Text:      text,
		Style:     "SECONDARY",
		Action: &ButtonAction{
			ClassName: "PostMessageAction",
			ActionID:  actionID,
			Payload:   payload,
		},
	}
}

// ApplicationUnfurl pairs produced content with its queue item.
type ApplicationUnfurl struct {
	QueueItemID string        `json:"queueItemId"`
	Content     UnfurlContent `json:"content"`
}

// Profile is a team directory member, fetched with id fields only.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Channel is a chat channel with the contact metadata the unfurl
// providers render, plus issue or code review content for the channels
// backing those entities.
type Channel struct {
	Contact ChannelContact  `json:"contact"`
	Content *ChannelContent `json:"content,omitempty"`
}

type ChannelContact struct {
	Key         string             `json:"key"`
	DefaultName string             `json:"defaultName"`
	Ext         *ChannelContactExt `json:"ext,omitempty"`
}

type ChannelContactExt struct {
	Name string `json:"name,omitempty"`
}

// Name prefers the shared channel name over the contact default.
func (c *Channel) Name() string {
	if c.Contact.Ext != nil && c.Contact.Ext.Name != "" {
		return c.Contact.Ext.Name
	}
	return c.Contact.DefaultName
}

type ChannelContent struct {
	ProjectKey *ProjectKey `json:"projectKey,omitempty"`
	Project    *ProjectKey `json:"project,omitempty"`
	Issue      *Issue      `json:"issue,omitempty"`
	CodeReview *CodeReview `json:"codeReview,omitempty"`
}

type ProjectKey struct {
	Key string `json:"key"`
}

type Issue struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CodeReview is either a merge request or a commit set review,
// discriminated by className.
type CodeReview struct {
	ClassName string      `json:"className"`
	Number    int         `json:"number"`
	Title     string      `json:"title"`
	State     string      `json:"state"`
	Project   ProjectKey  `json:"project"`
	CreatedBy *ReviewUser `json:"createdBy,omitempty"`
}

func (r *CodeReview) IsMergeRequest() bool {
	return r.ClassName == "MergeRequestRecord"
}

type ReviewUser struct {
	Name UserName `json:"name"`
}

type UserName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ChatMessage is a channel message with author and creation time.
type ChatMessage struct {
	Author  MessageAuthor `json:"author"`
	Created string        `json:"created"`
	Text    string        `json:"text"`
}

type MessageAuthor struct {
	Name    string         `json:"name"`
	Details *authorDetails `json:"details,omitempty"`
}

type authorDetails struct {
	User *struct {
		Name UserName `json:"name"`
	} `json:"user,omitempty"`
}

// DisplayName prefers the resolved user name over the principal name.
func (a *MessageAuthor) DisplayName() string {
	if a.Details != nil && a.Details.User != nil {
		n := a.Details.User.Name
		if n.FirstName != "" || n.LastName != "" {
			return n.FirstName + " " + n.LastName
		}
	}
	return a.Name
}

// Document is a parsed rich text document. Nodes are polymorphic on
// className: paragraphs, headings, lists, list items, quotes and code
// blocks carry children; text leafs carry a value and marks.
type Document struct {
	Children []DocumentNode `json:"children"`
}

type DocumentNode struct {
	ClassName   string         `json:"className"`
	Children    []DocumentNode `json:"children,omitempty"`
	Value       string         `json:"value,omitempty"`
	Marks       []DocumentMark `json:"marks,omitempty"`
	StartNumber int            `json:"startNumber,omitempty"`
}

type DocumentMark struct {
	ClassName string          `json:"className"`
	Attrs     *MarkAttributes `json:"attrs,omitempty"`
}

type MarkAttributes struct {
	Href    string       `json:"href,omitempty"`
	Details *LinkDetails `json:"details,omitempty"`
}

type LinkDetails struct {
	ClassName string `json:"className"`
}

// IsMention reports whether a link mark points at a profile, team or
// predefined mention rather than an external URL.
func (m *DocumentMark) IsMention() bool {
	if m.Attrs == nil || m.Attrs.Details == nil {
		return false
	}
	switch m.Attrs.Details.ClassName {
	case "RtProfileLinkDetails", "RtTeamLinkDetails", "RtPredefinedMentionLinkDetails":
		return true
	}
	return false
}

// WebhookPayload is the envelope Space posts to the application
// webhook, discriminated by className.
type WebhookPayload struct {
	ClassName    string `json:"className"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	ServerURL    string `json:"serverUrl,omitempty"`
	UserID       string `json:"userId,omitempty"`
	ActionID     string `json:"actionId,omitempty"`
	ActionValue  string `json:"actionValue,omitempty"`
}

// Webhook payload class names.
const (
	PayloadInit          = "InitPayload"
	PayloadNewQueueItems = "NewUnfurlQueueItemsPayload"
	PayloadUnfurlAction  = "ApplicationUnfurlActionPayload"
	PayloadChangeSecret  = "ChangeClientSecretPayload"
)

// Unfurl action ids posted by the auth prompt buttons.
const (
	ActionAuthenticate = "authenticate"
	ActionNotNow       = "not-now"
	ActionNever        = "never"
)

// TokenInfo is the Space OAuth token endpoint response.
type TokenInfo struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}
