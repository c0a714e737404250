package richtext

import (
	"strconv"
	"strings"
	"time"

	"github.com/JetBrains/space-slack-unfurls/internal/slack"
)

// RenderMessage converts a Slack message into Space markdown. Messages
// without rich text blocks fall back to the plain text field.
func RenderMessage(msg *slack.Message, lk Lookups) string {
	var elements []slack.RichTextElement
	for _, block := range msg.Blocks {
		if block.Type == "rich_text" {
			elements = append(elements, block.Elements...)
		}
	}
	if len(elements) == 0 {
		return msg.Text
	}

	var sb strings.Builder
	for _, el := range elements {
		appendSlackElement(&sb, &el, lk)
	}
	return sb.String()
}

// RenderBlocks converts rich text blocks into Space markdown.
func RenderBlocks(blocks []slack.RichTextBlock, lk Lookups) string {
	var sb strings.Builder
	for _, block := range blocks {
		for _, el := range block.Elements {
			appendSlackElement(&sb, &el, lk)
		}
	}
	return sb.String()
}

func appendSlackElement(sb *strings.Builder, el *slack.RichTextElement, lk Lookups) {
	switch el.Type {
	case "rich_text_section":
		for _, child := range el.Elements {
			appendSlackElement(sb, &child, lk)
		}

	case "rich_text_list":
		marker := "* "
		ordered := el.ListStyle() == "ordered"
		for i, item := range el.Elements {
			sb.WriteString(strings.Repeat("   ", el.Indent))
			if ordered {
				marker = strconv.Itoa(i+1) + ". "
			}
			sb.WriteString(marker)
			appendSlackElement(sb, &item, lk)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")

	case "rich_text_preformatted":
		sb.WriteString("```\n")
		for _, child := range el.Elements {
			appendSlackElement(sb, &child, lk)
		}
		sb.WriteString("\n```\n")

	case "rich_text_quote":
		for _, child := range el.Elements {
			sb.WriteString("> ")
			appendSlackElement(sb, &child, lk)
			sb.WriteString("\n")
		}

	case "text":
		appendStyled(sb, el.TextStyle(), el.Text)

	case "link":
		if el.Text == "" {
			appendStyled(sb, el.TextStyle(), el.URL)
		} else {
			appendStyled(sb, el.TextStyle(), "["+el.Text+"]("+el.URL+")")
		}

	case "channel":
		if label, ok := lk.Channels[el.ChannelID]; ok {
			appendStyled(sb, el.TextStyle(), ChannelLink(lk.SlackDomain, el.ChannelID, label))
		}

	case "user":
		if name, ok := lk.Users[el.UserID]; ok {
			appendStyled(sb, el.TextStyle(), "`@"+name+"`")
		}

	case "team":
		if name, ok := lk.Teams[el.TeamID]; ok {
			appendStyled(sb, el.TextStyle(), "`@"+name+"`")
		}

	case "usergroup":
		if name, ok := lk.UserGroups[el.UsergroupID]; ok {
			sb.WriteString(name)
		}

	case "date":
		if el.Timestamp > 0 {
			sb.WriteString(time.Unix(el.Timestamp, 0).Format("2006-01-02 15:04"))
		}

	case "broadcast":
		sb.WriteString("`@" + el.Range + "`")
	}
}

// appendStyled wraps text in markdown marks: opened in declared order,
// closed in reverse.
func appendStyled(sb *strings.Builder, style slack.TextStyle, text string) {
	var marks []string
	if style.Bold {
		marks = append(marks, "**")
	}
	if style.Italic {
		marks = append(marks, "_")
	}
	if style.Strike {
		marks = append(marks, "~~")
	}
	if style.Code {
		marks = append(marks, "`")
	}

	for _, m := range marks {
		sb.WriteString(m)
	}
	sb.WriteString(text)
	for i := len(marks) - 1; i >= 0; i-- {
		sb.WriteString(marks[i])
	}
}
