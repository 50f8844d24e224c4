package emotion

import "strings"

// Label 表示头像可以展示的情绪标签。
type Label string

const (
	Neutral Label = "Neutral"
	Happy   Label = "Happy"
	Sad     Label = "Sad"
	Scared  Label = "Scared"
	Angry   Label = "Angry"
	Joy     Label = "Joy"
)

var labels = []Label{Happy, Sad, Scared, Angry, Joy, Neutral}

// Labels 返回全部可识别的情绪标签。
func Labels() []Label {
	return append([]Label(nil), labels...)
}

// Parse 不区分大小写地把名称解析为情绪标签。
func Parse(name string) (Label, bool) {
	name = strings.TrimSpace(name)
	for _, label := range labels {
		if strings.EqualFold(name, string(label)) {
			return label, true
		}
	}
	return Neutral, false
}

// Valid 判断标签是否属于封闭集合。
func (l Label) Valid() bool {
	for _, label := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// Tag 返回带方括号的标签文本，例如 "[Happy]"。
func (l Label) Tag() string {
	return "[" + string(l) + "]"
}

// ParseTag 从回复开头提取情绪标签并返回去掉标签后的正文。
// 没有标签或标签无法识别时返回 Neutral，正文保持原样。
func ParseTag(raw string) (Label, string) {
	trimmed := strings.TrimLeft(raw, " \t\r\n")
	if !strings.HasPrefix(trimmed, "[") {
		return Neutral, raw
	}

	end := strings.IndexByte(trimmed, ']')
	if end < 0 {
		return Neutral, raw
	}

	label, ok := Parse(trimmed[1:end])
	if !ok {
		return Neutral, raw
	}
	return label, strings.TrimSpace(trimmed[end+1:])
}

// Prefix 为正文加上情绪标签前缀，Neutral 或空标签不加前缀。
func Prefix(label Label, content string) string {
	if label == "" || label == Neutral || !label.Valid() {
		return content
	}
	return label.Tag() + " " + content
}
