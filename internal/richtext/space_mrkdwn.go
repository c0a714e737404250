package richtext

import (
	"strconv"
	"strings"

	"github.com/JetBrains/space-slack-unfurls/internal/space"
)

// RenderDocument converts a parsed Space rich text document into Slack
// mrkdwn. Nested blocks are indented with tabs, links use the
// <url|text> form, mention links render as plain @name text.
func RenderDocument(doc *space.Document) string {
	var sb strings.Builder
	for _, node := range doc.Children {
		appendSpaceBlock(&sb, &node, "", false)
	}
	return sb.String()
}

func appendSpaceBlock(sb *strings.Builder, node *space.DocumentNode, linePrefix string, prefixFirst bool) {
	writePrefixed := func(s string, ix int) {
		if ix > 0 || prefixFirst {
			sb.WriteString(linePrefix)
		}
		sb.WriteString(s)
	}

	switch node.ClassName {
	case "RtBlockquote":
		for i, child := range node.Children {
			writePrefixed("> ", i)
			appendSpaceBlock(sb, &child, linePrefix+"\t", false)
		}
		if linePrefix == "" {
			sb.WriteString("\n")
		}

	case "RtBulletList":
		if linePrefix == "" {
			sb.WriteString("\n")
		}
		for i, child := range node.Children {
			writePrefixed("*  ", i)
			appendSpaceBlock(sb, &child, linePrefix+"\t", false)
		}
		if linePrefix == "" {
			sb.WriteString("\n")
		}

	case "RtOrderedList":
		start := node.StartNumber
		if start == 0 {
			start = 1
		}
		if linePrefix == "" {
			sb.WriteString("\n")
		}
		for i, child := range node.Children {
			writePrefixed(strconv.Itoa(start+i)+".  ", i)
			appendSpaceBlock(sb, &child, linePrefix+"\t", false)
		}
		if linePrefix == "" {
			sb.WriteString("\n")
		}

	case "RtListItem":
		for i, child := range node.Children {
			appendSpaceBlock(sb, &child, linePrefix, prefixFirst || i > 0)
		}

	case "RtCode":
		sb.WriteString("```\n")
		for _, child := range node.Children {
			appendSpaceInline(sb, &child)
			sb.WriteString("\n")
		}
		sb.WriteString("```\n\n")

	case "RtHeading", "RtParagraph":
		if prefixFirst {
			sb.WriteString(linePrefix)
		}
		for _, child := range node.Children {
			appendSpaceInline(sb, &child)
		}
		sb.WriteString("\n")
	}
}

func appendSpaceInline(sb *strings.Builder, node *space.DocumentNode) {
	switch node.ClassName {
	case "RtBreak":
		sb.WriteString("\n")

	case "RtText":
		for i := range node.Marks {
			openMark(sb, &node.Marks[i])
		}
		sb.WriteString(node.Value)
		for i := len(node.Marks) - 1; i >= 0; i-- {
			closeMark(sb, &node.Marks[i])
		}
	}
}

func openMark(sb *strings.Builder, mark *space.DocumentMark) {
	switch mark.ClassName {
	case "RtBoldMark":
		sb.WriteString("*")
	case "RtItalicMark":
		sb.WriteString("_")
	case "RtStrikeThroughMark":
		sb.WriteString("~")
	case "RtCodeMark":
		sb.WriteString("`")
	case "RtLinkMark":
		if mark.IsMention() {
			sb.WriteString("@")
		} else if mark.Attrs != nil {
			sb.WriteString("<" + mark.Attrs.Href + "|")
		}
	}
}

func closeMark(sb *strings.Builder, mark *space.DocumentMark) {
	switch mark.ClassName {
	case "RtBoldMark":
		sb.WriteString("*")
	case "RtItalicMark":
		sb.WriteString("_")
	case "RtStrikeThroughMark":
		sb.WriteString("~")
	case "RtCodeMark":
		sb.WriteString("`")
	case "RtLinkMark":
		if !mark.IsMention() && mark.Attrs != nil {
			sb.WriteString(">")
		}
	}
}
