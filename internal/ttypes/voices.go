package ttypes

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Voice names a prebuilt voice of the speech service.
type Voice string

// Prebuilt voices.
const (
	VoiceZephyr        Voice = "Zephyr"
	VoicePuck          Voice = "Puck"
	VoiceCharon        Voice = "Charon"
	VoiceKore          Voice = "Kore"
	VoiceFenrir        Voice = "Fenrir"
	VoiceLeda          Voice = "Leda"
	VoiceOrus          Voice = "Orus"
	VoiceAoede         Voice = "Aoede"
	VoiceCallirrhoe    Voice = "Callirrhoe"
	VoiceAutonoe       Voice = "Autonoe"
	VoiceEnceladus     Voice = "Enceladus"
	VoiceIapetus       Voice = "Iapetus"
	VoiceUmbriel       Voice = "Umbriel"
	VoiceAlgieba       Voice = "Algieba"
	VoiceDespina       Voice = "Despina"
	VoiceErinome       Voice = "Erinome"
	VoiceAlgenib       Voice = "Algenib"
	VoiceRasalgethi    Voice = "Rasalgethi"
	VoiceLaomedeia     Voice = "Laomedeia"
	VoiceAchernar      Voice = "Achernar"
	VoiceAlnilam       Voice = "Alnilam"
	VoiceSchedar       Voice = "Schedar"
	VoiceGacrux        Voice = "Gacrux"
	VoicePulcherrima   Voice = "Pulcherrima"
	VoiceAchird        Voice = "Achird"
	VoiceZubenelgenubi Voice = "Zubenelgenubi"
	VoiceVindemiatrix  Voice = "Vindemiatrix"
	VoiceSadachbia     Voice = "Sadachbia"
	VoiceSadaltager    Voice = "Sadaltager"
	VoiceSulafat       Voice = "Sulafat"
)

// DefaultVoice is used for new documents.
const DefaultVoice = VoiceZephyr

// Gender of a voice, as shown in the voice list.
type Gender string

const (
	Female Gender = "Female"
	Male   Gender = "Male"
)

// VoiceMetadata describes a voice for listing and search.
type VoiceMetadata struct {
	ID          Voice
	Name        string
	Gender      Gender
	Tags        []string
	Description string
}

// String returns the text fuzzy search matches against.
func (m VoiceMetadata) String() string {
	return m.Name + " " + strings.Join(m.Tags, " ") + " " + m.Description
}

var catalog = []VoiceMetadata{
	{ID: VoiceZephyr, Name: "Zephyr", Gender: Female, Tags: []string{"中文首选", "清晰", "高亮"}, Description: "发音最标准的通用女声，适合各类中文助手、通知及播报"},
	{ID: VoicePuck, Name: "Puck", Gender: Male, Tags: []string{"双语通用", "质感", "叙事"}, Description: "略带沙哑的独特男声，适合有声书或需要情感张力的独白"},
	{ID: VoiceCharon, Name: "Charon", Gender: Male, Tags: []string{"中文推荐", "威严", "深沉"}, Description: "稳重磁性的男声，咬字清晰，非常适合新闻播报或严肃叙事"},
	{ID: VoiceKore, Name: "Kore", Gender: Female, Tags: []string{"中文适用", "温柔", "治愈"}, Description: "放松平静的女声，适合情感电台、冥想引导或日常对话"},
	{ID: VoiceFenrir, Name: "Fenrir", Gender: Male, Tags: []string{"双语通用", "激昂", "有力"}, Description: "充满能量的男声，适合游戏解说、广告或快节奏内容"},
	{ID: VoiceLeda, Name: "Leda", Gender: Female, Tags: []string{"青春", "活泼"}, Description: "清脆悦耳的年轻女声，适合社交媒体、短视频、或者是充满活力的广告场景"},
	{ID: VoiceOrus, Name: "Orus", Gender: Male, Tags: []string{"商务", "正式"}, Description: "稳重大方的男声，具有很强的信服力，非常适合企业宣传或商业演示"},
	{ID: VoiceAoede, Name: "Aoede", Gender: Female, Tags: []string{"轻快", "自然"}, Description: "如同微风拂面般的自然嗓音，适合轻快的日常分享或生活化的播报"},
	{ID: VoiceCallirrhoe, Name: "Callirrhoe", Gender: Female, Tags: []string{"轻松", "舒缓"}, Description: "节奏舒缓、语气柔和的女声，能够营造出安宁舒适的氛围"},
	{ID: VoiceAutonoe, Name: "Autonoe", Gender: Female, Tags: []string{"明亮", "悦耳"}, Description: "发音饱满明亮的女声，无论是通知还是讲解都能清晰传递信息"},
	{ID: VoiceEnceladus, Name: "Enceladus", Gender: Male, Tags: []string{"气声", "磁性"}, Description: "略带气声的磁性男声，非常有质感，适合电影配音或情感独白"},
	{ID: VoiceIapetus, Name: "Iapetus", Gender: Male, Tags: []string{"清晰", "冷静"}, Description: "语言表达极其清晰干练的男声，适合科技解析、学术报告等理性内容"},
	{ID: VoiceUmbriel, Name: "Umbriel", Gender: Male, Tags: []string{"随性", "惬意"}, Description: "语气轻松自在的男声，就像在和老朋友聊天，适合生活博主或播客分享"},
	{ID: VoiceAlgieba, Name: "Algieba", Gender: Female, Tags: []string{"平滑", "知性"}, Description: "如丝绸般顺滑的嗓音，流露着一种知性美，是深度长文阅读的最佳选择"},
	{ID: VoiceDespina, Name: "Despina", Gender: Female, Tags: []string{"柔滑", "优雅"}, Description: "极具优雅韵味的美声，为你的内容增添一份尊贵感"},
	{ID: VoiceErinome, Name: "Erinome", Gender: Female, Tags: []string{"清澈", "通透"}, Description: "宛如泉水般纯净透明的声音，听感非常直接且毫无修饰"},
	{ID: VoiceAlgenib, Name: "Algenib", Gender: Male, Tags: []string{"粗犷", "力量"}, Description: "带有沙哑质感的硬朗男声，传达出强大的意志和力量感"},
	{ID: VoiceRasalgethi, Name: "Rasalgethi", Gender: Male, Tags: []string{"全能", "科普"}, Description: "最全能的科普讲解男声，自带一种权威、博学的专业感"},
	{ID: VoiceLaomedeia, Name: "Laomedeia", Gender: Female, Tags: []string{"俏皮", "可爱"}, Description: "灵动俏皮的声音，能够精准捕捉快乐的情绪，适合儿童内容或轻喜剧"},
	{ID: VoiceAchernar, Name: "Achernar", Gender: Female, Tags: []string{"柔软", "梦幻"}, Description: "如梦似幻的轻柔女声，适合助眠导读或需要静谧感的内容"},
	{ID: VoiceAlnilam, Name: "Alnilam", Gender: Male, Tags: []string{"沉稳", "深厚"}, Description: "底蕴深沉的男声，给人一种脚踏实地的可靠感"},
	{ID: VoiceSchedar, Name: "Schedar", Gender: Male, Tags: []string{"平稳", "中立"}, Description: "语调四平八稳的中立男声，不带个人感情色彩，非常客观"},
	{ID: VoiceGacrux, Name: "Gacrux", Gender: Male, Tags: []string{"成熟", "阅历"}, Description: "充满故事感的成熟男声，适合回忆录或经典的叙述性文本"},
	{ID: VoicePulcherrima, Name: "Pulcherrima", Gender: Female, Tags: []string{"直爽", "干脆"}, Description: "心直口快、豪爽的女声，非常适合具有说服性的演讲或快剪视频"},
	{ID: VoiceAchird, Name: "Achird", Gender: Male, Tags: []string{"友好", "邻家"}, Description: "十分亲切友好的邻家大哥哥，适合教程、导游或亲子互动场景"},
	{ID: VoiceZubenelgenubi, Name: "Zubenelgenubi", Gender: Male, Tags: []string{"闲适", "低调"}, Description: "完全不紧不慢的悠闲嗓音，让听众彻底放松精神"},
	{ID: VoiceVindemiatrix, Name: "Vindemiatrix", Gender: Female, Tags: []string{"贤淑", "端庄"}, Description: "尽显端庄贤淑气息的女声，适合介绍传统文化或温馨的家庭故事"},
	{ID: VoiceSadachbia, Name: "Sadachbia", Gender: Female, Tags: []string{"动感", "元气"}, Description: "元气满满、充满跃动感的声音，为你的作品补充能量"},
	{ID: VoiceSadaltager, Name: "Sadaltager", Gender: Male, Tags: []string{"专业", "说服力"}, Description: "充满职业智慧与信服力的声音，是制作咨询项目或专家演讲的首选"},
	{ID: VoiceSulafat, Name: "Sulafat", Gender: Female, Tags: []string{"高频", "穿透力"}, Description: "频率极佳且极具穿透力的女声，即使在嘈杂环境下也清晰可辨"},
}

// Voices returns the voice catalog in display order.
func Voices() []VoiceMetadata {
	out := make([]VoiceMetadata, len(catalog))
	copy(out, catalog)
	return out
}

// LookupVoice finds a voice by name, ignoring case.
func LookupVoice(name string) (VoiceMetadata, bool) {
	for _, m := range catalog {
		if strings.EqualFold(m.Name, strings.TrimSpace(name)) {
			return m, true
		}
	}
	return VoiceMetadata{}, false
}

// ParseVoice is LookupVoice returning an error for unknown names.
func ParseVoice(name string) (Voice, error) {
	m, ok := LookupVoice(name)
	if !ok {
		return "", &unknownVoiceError{name: name, suggestions: SearchVoices(name)}
	}
	return m.ID, nil
}

type unknownVoiceError struct {
	name        string
	suggestions []VoiceMetadata
}

func (e *unknownVoiceError) Error() string {
	if len(e.suggestions) == 0 {
		return fmt.Sprintf("unknown voice %q", e.name)
	}
	return fmt.Sprintf("unknown voice %q, did you mean %s?", e.name, e.suggestions[0].Name)
}

type voiceSource []VoiceMetadata

func (s voiceSource) String(i int) string { return strings.ToLower(s[i].String()) }
func (s voiceSource) Len() int            { return len(s) }

// SearchVoices fuzzy matches query against voice names, tags and
// descriptions. Results are ordered best match first.
func SearchVoices(query string) []VoiceMetadata {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return Voices()
	}
	matches := fuzzy.FindFrom(query, voiceSource(catalog))
	out := make([]VoiceMetadata, 0, len(matches))
	for _, m := range matches {
		out = append(out, catalog[m.Index])
	}
	return out
}
