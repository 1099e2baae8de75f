package survey

// Category groups standard questions into the areas reports are broken down by.
type Category string

const (
	CategoryDemands        Category = "demands"
	CategoryControl        Category = "control"
	CategoryManagerSupport Category = "manager_support"
	CategoryPeerSupport    Category = "peer_support"
	CategoryRelationships  Category = "relationships"
	CategoryRole           Category = "role"
	CategoryChange         Category = "change"
)

// Categories in report order.
var Categories = []Category{
	CategoryDemands,
	CategoryControl,
	CategoryManagerSupport,
	CategoryPeerSupport,
	CategoryRelationships,
	CategoryRole,
	CategoryChange,
}

var categoryLabels = map[Category]string{
	CategoryDemands:        "Demands",
	CategoryControl:        "Control",
	CategoryManagerSupport: "Manager support",
	CategoryPeerSupport:    "Peer support",
	CategoryRelationships:  "Relationships",
	CategoryRole:           "Role",
	CategoryChange:         "Change",
}

func (c Category) Label() string { return categoryLabels[c] }

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

const (
	MinScore = 1
	MaxScore = 5
)

// StandardQuestion is one item of the built-in questionnaire, answered on a 1..5 scale.
// Negative items are worded so that agreeing is bad and get reverse scored.
type StandardQuestion struct {
	Number   int      `json:"number"`
	Text     string   `json:"text"`
	Category Category `json:"category"`
	Negative bool     `json:"negative"`
}

// Score normalizes an answer so that higher is always better.
func (q StandardQuestion) Score(answer int) int {
	if q.Negative {
		return MaxScore + MinScore - answer
	}
	return answer
}

// StandardQuestions is the wellbeing indicator questionnaire every survey includes.
var StandardQuestions = []StandardQuestion{
	{1, "I am clear what is expected of me at work", CategoryRole, false},
	{2, "I can decide when to take a break", CategoryControl, false},
	{3, "Different groups at work demand things from me that are hard to combine", CategoryDemands, true},
	{4, "I know how to go about getting my job done", CategoryRole, false},
	{5, "I am subject to personal harassment in the form of unkind words or behaviour", CategoryRelationships, true},
	{6, "I have unachievable deadlines", CategoryDemands, true},
	{7, "If work gets difficult, my colleagues will help me", CategoryPeerSupport, false},
	{8, "I am given supportive feedback on the work I do", CategoryManagerSupport, false},
	{9, "I have to work very intensively", CategoryDemands, true},
	{10, "I have a say in my own work speed", CategoryControl, false},
	{11, "I am clear what my duties and responsibilities are", CategoryRole, false},
	{12, "I have to neglect some tasks because I have too much to do", CategoryDemands, true},
	{13, "I am clear about the goals and objectives for my department", CategoryRole, false},
	{14, "There is friction or anger between colleagues", CategoryRelationships, true},
	{15, "I have a choice in deciding how I do my work", CategoryControl, false},
	{16, "I am unable to take sufficient breaks", CategoryDemands, true},
	{17, "I understand how my work fits into the overall aim of the organisation", CategoryRole, false},
	{18, "I am pressured to work long hours", CategoryDemands, true},
	{19, "I have a choice in deciding what I do at work", CategoryControl, false},
	{20, "I have to work very fast", CategoryDemands, true},
	{21, "I am subject to bullying at work", CategoryRelationships, true},
	{22, "I have unrealistic time pressures", CategoryDemands, true},
	{23, "I can rely on my line manager to help me out with a work problem", CategoryManagerSupport, false},
	{24, "I get help and support I need from colleagues", CategoryPeerSupport, false},
	{25, "I have some say over the way I work", CategoryControl, false},
	{26, "I have sufficient opportunities to question managers about change at work", CategoryChange, false},
	{27, "I receive the respect at work I deserve from my colleagues", CategoryPeerSupport, false},
	{28, "Staff are always consulted about change at work", CategoryChange, false},
	{29, "I can talk to my line manager about something that has upset or annoyed me about work", CategoryManagerSupport, false},
	{30, "My working time can be flexible", CategoryControl, false},
	{31, "My colleagues are willing to listen to my work-related problems", CategoryPeerSupport, false},
	{32, "When changes are made at work, I am clear how they will work out in practice", CategoryChange, false},
	{33, "I am supported through emotionally demanding work", CategoryManagerSupport, false},
	{34, "Relationships at work are strained", CategoryRelationships, true},
	{35, "My line manager encourages me at work", CategoryManagerSupport, false},
}

var standardByNumber = func() map[int]StandardQuestion {
	m := make(map[int]StandardQuestion, len(StandardQuestions))
	for _, q := range StandardQuestions {
		m[q.Number] = q
	}
	return m
}()

func GetStandardQuestion(number int) (StandardQuestion, bool) {
	q, ok := standardByNumber[number]
	return q, ok
}
