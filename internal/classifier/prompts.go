package classifier

// System prompts sent with each classification stage. The structured-output
// shapes they demand are what parse.go expects back.

const summarizeSystemPrompt = "You are a model that writes a short, neutral summary of a website " +
	"based on its extracted text content. Describe the site's theme and core topics in two or " +
	"three sentences of plain prose. Do not use markdown, lists, or headings."

const taxonomySystemPrompt = "You are an AI model tasked with identifying relevant classification " +
	"categories and associated labels based on the theme of a given website. " +
	"For each website, generate two or three specific categories that would help classify user " +
	"interests, preferences, or engagement levels. " +
	"Additionally, provide possible labels within each category that represent various user " +
	"segments or preferences. " +
	"For example, if the theme is 'movies and cinema,' suitable categories could include " +
	"'favorite genres,' 'favorite actors,' and 'level of engagement with movies,' " +
	"with labels like 'Action,' 'Comedy,' 'Drama,' or 'Frequent Viewer,' 'Casual Viewer,' " +
	"'New Release Enthusiast.' " +
	"If the theme is 'sports,' categories could include 'favorite sport,' 'level of physical " +
	"activity,' or 'favorite teams,' with labels like 'Soccer,' 'Basketball,' 'Active " +
	"Participant,' 'Fan,' 'Team Supporter.' " +
	"Think about classifications that capture user identity, preferences, or engagement within " +
	"the theme. " +
	`Output must be structured as: {"categories": [{"category": "Category Name", "labels": ["Label 1", "Label 2"]}]}.`

const questionsSystemPrompt = "You are a model designed to generate questions that help classify " +
	"users' interests and industries based on content themes. " +
	"Your goal is to create questions that reveal information across these categories: %s. " +
	"A user may belong to multiple labels in each category. " +
	"Generate 7 questions based on the provided content, each aiming to identify the most " +
	"relevant labels across these categories. Questions should be broad enough to apply to " +
	"various users but specific enough to gather useful information. Structure each question " +
	"as a multiple-choice format with several options, allowing users to select one or more " +
	"responses. " +
	`Output must be structured as: {"questions": [{"question": "Question text here?", "options": ["Option 1", "Option 2"]}]}. ` +
	"Ensure options are relevant to the content and representative of diverse user interests " +
	"and backgrounds."

const classifySystemPrompt = "You are a model that classifies users based on their answers to " +
	"questions related to specific categories. The categories and their potential labels are " +
	"as follows:\n%s\n\n" +
	"Each user may belong to multiple labels in each category. " +
	"Your task is to analyze the user's responses and assign the most relevant labels within " +
	"each category. " +
	`Output must be structured as: {"categories": [{"category": "Category Name", "labels": ["Label 1", "Label 2"]}]}. ` +
	"Make sure that each label accurately reflects the user's preferences and engagement " +
	"levels within each category."

const classifyUserPrompt = "Here are the user's responses to the questions:\n\n%s\n\n" +
	"Classify the user based on the answers provided. Assign labels within each category " +
	"that align with the user's preferences."
