package normalize

// nicknames maps a canonical given name to its common diminutives.
var nicknames = map[string][]string{
	"abigail":     {"abby", "abbie", "gail"},
	"albert":      {"al", "bert", "bertie"},
	"alexander":   {"alex", "al", "sandy", "xander"},
	"alexandra":   {"alex", "alexa", "sandra", "sandy", "lexi"},
	"alfred":      {"al", "alf", "alfie", "fred"},
	"andrew":      {"andy", "drew"},
	"anthony":     {"tony", "ant"},
	"barbara":     {"barb", "barbie", "babs"},
	"benjamin":    {"ben", "benny", "benji"},
	"bradley":     {"brad"},
	"catherine":   {"cathy", "cat", "kate", "katie", "cate"},
	"charles":     {"charlie", "chuck", "chas", "chaz"},
	"christina":   {"chris", "chrissy", "tina"},
	"christine":   {"chris", "chrissy", "tina"},
	"christopher": {"chris", "topher", "kit"},
	"daniel":      {"dan", "danny"},
	"david":       {"dave", "davey"},
	"deborah":     {"deb", "debbie", "debby"},
	"donald":      {"don", "donnie"},
	"dorothy":     {"dot", "dottie", "dolly"},
	"douglas":     {"doug"},
	"edward":      {"ed", "eddie", "ned", "ted", "teddy"},
	"elizabeth":   {"liz", "lizzie", "beth", "betty", "betsy", "eliza", "libby", "bess"},
	"eugene":      {"gene"},
	"frances":     {"fran", "frannie"},
	"francis":     {"frank", "fran"},
	"frederick":   {"fred", "freddie", "rick"},
	"gerald":      {"gerry", "jerry"},
	"gregory":     {"greg"},
	"harold":      {"hal", "harry"},
	"henry":       {"hank", "harry", "hal"},
	"jacob":       {"jake"},
	"james":       {"jim", "jimmy", "jamie"},
	"janet":       {"jan"},
	"jeffrey":     {"jeff"},
	"jennifer":    {"jen", "jenny", "jenn"},
	"jessica":     {"jess", "jessie"},
	"john":        {"jack", "johnny", "jon"},
	"jonathan":    {"jon", "johnny", "nate"},
	"joseph":      {"joe", "joey", "jos"},
	"joshua":      {"josh"},
	"judith":      {"judy"},
	"katherine":   {"kathy", "kate", "katie", "kat", "kay", "kit"},
	"kathleen":    {"kathy", "kate", "katie"},
	"kenneth":     {"ken", "kenny"},
	"lawrence":    {"larry"},
	"leonard":     {"leo", "len", "lenny"},
	"margaret":    {"maggie", "meg", "peggy", "marge", "margie", "greta"},
	"matthew":     {"matt", "matty"},
	"michael":     {"mike", "mikey", "mick", "mickey"},
	"nathaniel":   {"nate", "nat"},
	"nicholas":    {"nick", "nicky", "nico"},
	"pamela":      {"pam"},
	"patricia":    {"pat", "patty", "trish", "tricia"},
	"patrick":     {"pat", "paddy"},
	"peter":       {"pete"},
	"philip":      {"phil"},
	"rebecca":     {"becky", "becca"},
	"richard":     {"rick", "ricky", "rich", "dick"},
	"robert":      {"rob", "bob", "bobby", "robbie", "bert"},
	"ronald":      {"ron", "ronnie"},
	"samantha":    {"sam", "sammy"},
	"samuel":      {"sam", "sammy"},
	"stephen":     {"steve", "stevie"},
	"steven":      {"steve", "stevie"},
	"susan":       {"sue", "susie", "suzy"},
	"theodore":    {"ted", "teddy", "theo"},
	"thomas":      {"tom", "tommy"},
	"timothy":     {"tim", "timmy"},
	"victoria":    {"vicky", "tori"},
	"walter":      {"walt", "wally"},
	"william":     {"will", "bill", "billy", "willie", "liam"},
	"zachary":     {"zach", "zack"},
}

// canonicalNames is the reverse index of nicknames: diminutive to canonicals.
var canonicalNames = func() map[string][]string {
	m := make(map[string][]string)
	for canonical, nicks := range nicknames {
		for _, n := range nicks {
			m[n] = append(m[n], canonical)
		}
	}
	return m
}()

// NamesEquivalent reports whether two given names refer to the same name,
// either directly or through the nickname table ("Bob" and "Robert"). Two
// diminutives are equivalent when they share a canonical name.
func NamesEquivalent(a, b string) bool {
	na, nb := FirstToken(a), FirstToken(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	for _, x := range equivalents(na) {
		for _, y := range equivalents(nb) {
			if x == y {
				return true
			}
		}
	}
	return false
}

func equivalents(name string) []string {
	return append([]string{name}, canonicalNames[name]...)
}
