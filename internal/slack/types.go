package slack

import (
	"encoding/json"
)

// apiEnvelope is the common part of every Slack Web API response.
type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Message is a message returned by conversations.history or
// conversations.replies.
type Message struct {
	Type     string          `json:"type"`
	User     string          `json:"user"`
	Text     string          `json:"text"`
	Ts       string          `json:"ts"`
	ThreadTs string          `json:"thread_ts"`
	Blocks   []RichTextBlock `json:"blocks"`
}

// RichTextBlock is a top-level message block. Only rich_text blocks
// carry the element tree the converter walks.
type RichTextBlock struct {
	Type     string            `json:"type"`
	BlockID  string            `json:"block_id,omitempty"`
	Elements []RichTextElement `json:"elements,omitempty"`
}

// RichTextElement is one node of Slack's rich text tree. Type
// discriminates both container nodes (rich_text_section,
// rich_text_list, rich_text_preformatted, rich_text_quote) and leaf
// nodes (text, link, emoji, user, channel, team, usergroup, date,
// broadcast). Style is raw because Slack overloads it: an object with
// boolean marks on leafs, a plain string on list containers.
type RichTextElement struct {
	Type     string            `json:"type"`
	Elements []RichTextElement `json:"elements,omitempty"`

	Text        string          `json:"text,omitempty"`
	URL         string          `json:"url,omitempty"`
	Name        string          `json:"name,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	ChannelID   string          `json:"channel_id,omitempty"`
	TeamID      string          `json:"team_id,omitempty"`
	UsergroupID string          `json:"usergroup_id,omitempty"`
	Timestamp   int64           `json:"timestamp,omitempty"`
	Format      string          `json:"format,omitempty"`
	Range       string          `json:"range,omitempty"`
	Indent      int             `json:"indent,omitempty"`
	Style       json.RawMessage `json:"style,omitempty"`
}

// TextStyle is the mark set on a leaf element.
type TextStyle struct {
	Bold   bool `json:"bold"`
	Italic bool `json:"italic"`
	Strike bool `json:"strike"`
	Code   bool `json:"code"`
}

// TextStyle decodes the style marks of a leaf element. Returns the
// zero style when absent or when the node is a list container.
func (e *RichTextElement) TextStyle() TextStyle {
	var style TextStyle
	if len(e.Style) == 0 || e.Style[0] != '{' {
		return style
	}
	_ = json.Unmarshal(e.Style, &style)
	return style
}

// ListStyle returns "ordered" or "bullet" for rich_text_list nodes.
func (e *RichTextElement) ListStyle() string {
	var style string
	if len(e.Style) == 0 || e.Style[0] != '"' {
		return ""
	}
	_ = json.Unmarshal(e.Style, &style)
	return style
}

// User is the subset of users.info this service reads.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Profile  struct {
		DisplayName string `json:"display_name"`
	} `json:"profile"`
}

// DisplayLabel picks the best human readable name for mentions.
func (u *User) DisplayLabel() string {
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// Conversation is the subset of conversations.info this service reads.
type Conversation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IsIM bool   `json:"is_im"`
	User string `json:"user"`
}

// Team is the subset of team.info this service reads.
type Team struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Icon   struct {
		Image44 string `json:"image_44"`
	} `json:"icon"`
}

// Usergroup is one entry of usergroups.list.
type Usergroup struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

// Block Kit types used when posting unfurl content back to Slack.

// Block is a Block Kit layout block. Elements hold TextObject values
// for context blocks and ButtonElement values for actions blocks;
// blocks are only ever marshalled, never decoded.
type Block struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text,omitempty"`
	Elements []any       `json:"elements,omitempty"`
}

// TextObject is a Block Kit text composition object.
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ImageElement is a Block Kit image inside a context block.
type ImageElement struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
	AltText  string `json:"alt_text"`
}

// ContextImage builds an image element for context blocks.
func ContextImage(imageURL, altText string) ImageElement {
	return ImageElement{Type: "image", ImageURL: imageURL, AltText: altText}
}

// ButtonElement is a Block Kit button inside an actions block.
type ButtonElement struct {
	Type     string     `json:"type"`
	Text     TextObject `json:"text"`
	ActionID string     `json:"action_id,omitempty"`
	Value    string     `json:"value,omitempty"`
	URL      string     `json:"url,omitempty"`
	Style    string     `json:"style,omitempty"`
}

// MarkdownText builds a mrkdwn text object.
func MarkdownText(text string) TextObject {
	return TextObject{Type: "mrkdwn", Text: text}
}

// PlainText builds a plain_text object, required inside buttons.
func PlainText(text string) TextObject {
	return TextObject{Type: "plain_text", Text: text}
}

// SectionBlock builds a section block with mrkdwn text.
func SectionBlock(text string) Block {
	t := MarkdownText(text)
	return Block{Type: "section", Text: &t}
}

// ContextBlock builds a context block. Elements must be TextObject or
// ImageElement values.
func ContextBlock(elements ...any) Block {
	block := Block{Type: "context"}
	block.Elements = append(block.Elements, elements...)
	return block
}

// ActionsBlock builds an actions block from buttons.
func ActionsBlock(buttons ...ButtonElement) Block {
	block := Block{Type: "actions"}
	for _, b := range buttons {
		block.Elements = append(block.Elements, b)
	}
	return block
}

// Button posts an interaction back to the application.
func Button(text, actionID, value string) ButtonElement {
	return ButtonElement{Type: "button", Text: PlainText(text), ActionID: actionID, Value: value}
}

// LinkButton opens an URL.
func LinkButton(text, actionID, targetURL string) ButtonElement {
	return ButtonElement{Type: "button", Text: PlainText(text), ActionID: actionID, URL: targetURL, Style: "primary"}
}

// Unfurl is the per-URL content of a chat.unfurl call.
type Unfurl struct {
	Blocks []Block `json:"blocks"`
}

// UnfurlRequest is the body of a chat.unfurl call. Either Unfurls is
// set, or the user auth fields ask Slack to render an auth prompt.
type UnfurlRequest struct {
	Channel          string            `json:"channel,omitempty"`
	Ts               string            `json:"ts,omitempty"`
	UnfurlID         string            `json:"unfurl_id,omitempty"`
	Source           string            `json:"source,omitempty"`
	Unfurls          map[string]Unfurl `json:"unfurls,omitempty"`
	UserAuthRequired bool              `json:"user_auth_required,omitempty"`
	UserAuthBlocks   []Block           `json:"user_auth_blocks,omitempty"`
	UserAuthMessage  string            `json:"user_auth_message,omitempty"`
	UserAuthURL      string            `json:"user_auth_url,omitempty"`
}

// OAuthV2Response is the answer to oauth.v2.access, for both the
// initial code exchange and refresh_token grants.
type OAuthV2Response struct {
	apiEnvelope

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
	AppID        string `json:"app_id"`

	Team struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`

	AuthedUser struct {
		ID           string `json:"id"`
		Scope        string `json:"scope"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	} `json:"authed_user"`
}

// UserAccessToken returns the user token regardless of whether Slack
// put it at the top level or under authed_user.
func (r *OAuthV2Response) UserAccessToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.AuthedUser.AccessToken
}

// UserRefreshToken mirrors UserAccessToken for the refresh token.
func (r *OAuthV2Response) UserRefreshToken() string {
	if r.RefreshToken != "" {
		return r.RefreshToken
	}
	return r.AuthedUser.RefreshToken
}

// Event API payloads.

// EventCallback is the outer envelope delivered to the events endpoint.
type EventCallback struct {
	Type      string          `json:"type"`
	Token     string          `json:"token"`
	Challenge string          `json:"challenge"`
	TeamID    string          `json:"team_id"`
	Event     json.RawMessage `json:"event"`
}

// InnerEvent carries the type discriminator of the wrapped event.
type InnerEvent struct {
	Type string `json:"type"`
}

// LinkSharedEvent is delivered when a Space link appears in a Slack
// message.
type LinkSharedEvent struct {
	Type            string       `json:"type"`
	User            string       `json:"user"`
	Channel         string       `json:"channel"`
	MessageTs       string       `json:"message_ts"`
	UnfurlID        string       `json:"unfurl_id"`
	Source          string       `json:"source"`
	IsBotUserMember bool         `json:"is_bot_user_member"`
	Links           []SharedLink `json:"links"`
}

// SharedLink is one link of a link_shared event.
type SharedLink struct {
	Domain string `json:"domain"`
	URL    string `json:"url"`
}

// TeamDomainChangeEvent is delivered when a workspace is renamed.
type TeamDomainChangeEvent struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// Interactive payloads (block actions from the auth prompt).

// InteractionPayload is the subset of a block_actions payload this
// service reads.
type InteractionPayload struct {
	Type string `json:"type"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Team struct {
		ID string `json:"id"`
	} `json:"team"`
	ResponseURL string `json:"response_url"`
	Actions     []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}
