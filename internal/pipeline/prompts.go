package pipeline

import (
	"fmt"
	"strings"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/models"
)

// 三个阶段的系统提示词
const (
	formatSystemPrompt   = "你是一个专业的对话整理助手，擅长从工单记录中区分角色并格式化文本。"
	extractSystemPrompt  = "你是一个工单问答提取助手。你的任务是根据以下工单对话内容,理解并抽取出核心问题和对应的解决方案或回答。请确保提取的答案是完整且准确的,并且只包含与问题直接相关的信息。如果对话中没有明确的答案,请说明。请以JSON格式输出结果。如果存在多个问答对,请输出一个JSON数组。"
	validateSystemPrompt = "你是一个QA验证助手，使用推理模式评估QA对的真实性和相关性。"
)

// formatPrompt 生成对话整理提示词
func formatPrompt(messages []models.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Speaker, msg.Content))
	}
	conversation := strings.Join(lines, "\n")

	return fmt.Sprintf(`以下是一段工单对话记录，其中说话者名称为oa_user_name。请分析并整理成易于分析的文本格式，区分用户和工作人员的角色（基于名称或内容上下文判断用户是提问者，工作人员是回答者），删除任何AI或系统回复，并格式化为：
User: [内容]
Staff: [内容]
...
如果无法区分或没有有效内容，返回空字符串。

对话内容：
%s

请返回整理后的文本。`, conversation)
}

// extractPrompt 生成 QA 对抽取提示词
func extractPrompt(text string) string {
	return fmt.Sprintf(`角色
你是一个从工单记录中提取问题和解决方案的助手。你的任务是从给定的工单记录中识别出问题（即用户遇到的困难或故障）和相应的解决方案（即为解决问题采取的措施或行动），并将它们整理成 QA 对。任务
请从以下工单记录中提取问题和解决方案，并以指定的格式输出。如果工单记录中包含多个问题或解决方案，请将每个 QA 对分别列出。
如果问题或解决方案没有明确说明，根据上下文进行推断。
如果无法推断，忽略即可。
请确保提取的信息准确无误，不要添加额外的内容或臆测。

注意事项  工单记录通常包含用户报告的问题、工程师的检查结果以及采取的解决方案。请着重从这些部分提取信息。
问题通常是用户遇到的故障或异常现象，解决方案则是为解决问题而采取的具体行动。
如果工单记录中包含多个独立的问题和解决方案，请为每个问题和其对应的解决方案生成一个 QA 对。


工单文本：
%s

请提取问答对，格式如下：
{
  "qa_pairs": [
    {
      "question": "问题1",
      "answer": "回答1"
    },
    ...
  ]
}
`, text)
}

// validatePrompt 生成 QA 对质量评估提示词，要求模型只回答 yes/no
func validatePrompt(qa models.QAPair) string {
	return fmt.Sprintf(`目标： 指示LLM充当问答对的客观、专家评估员，判断其“真实性”（事实准确性、溯源性、无幻觉）和“有效性”（相关性、连贯性、实用性）。
角色分配： 提示开头明确定义LLM的角色和任务：
"您是一位资深的自然语言处理研究员和问答系统评估专家。您的任务是根据预定义的‘真实性’和‘有效性’标准，严格评估给定问答对（QA Pair）的质量。

有效且高质量问答对的评估标准：
评估类别:
真实性 (Realness):事实准确性，无幻觉，溯源性/忠实性  有效性：相关性，连贯性与清晰度，完整性与特异性，实用性与帮助性
事实准确性	答案是否基于通用知识或提供的上下文，在事实层面是正确的？
无幻觉	答案是否包含编造信息、矛盾、或与问题/上下文无关的细节？	1: 存在严重幻觉（捏造、矛盾）。
溯源性/忠实性 (如提供上下文)	如果提供了上下文，答案是否直接由该上下文支持，并忠实于其内容，没有引入外部或偏离的信息？
相关性	答案是否直接、完整地回应了问题，并满足了用户的潜在信息需求？
连贯性与清晰度	答案是否结构良好、逻辑流畅、易于理解、语法正确且无歧义？
完整性与特异性	答案是否提供了足够详细的信息，既不冗长也不遗漏关键点？
实用性与帮助性	答案是否对用户有用，提供可操作的见解或解决了实际问题？

如果符合，返回'yes'，否则'no'。只返回'yes'或'no'。
问题: %s
答案: %s`, qa.Question, qa.Answer)
}
