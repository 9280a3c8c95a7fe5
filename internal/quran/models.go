package quran

// Unit is the atomic addressable piece of text: a single verse.
// Units are immutable once fetched. Ordering is by PositionInChapter
// ascending within a chapter, or by GlobalPosition ascending within a
// page (pages may span chapter boundaries).
type Unit struct {
	ChapterNumber     int    `json:"chapter"`
	PositionInChapter int    `json:"position"`
	GlobalPosition    int    `json:"global"`
	Page              int    `json:"page"`
	Text              string `json:"text"`
}

// ChapterCount is the number of chapters (surahs) in the text.
const ChapterCount = 114

// chapterUnitCounts holds the number of verses per chapter, indexed by
// chapter number minus one.
var chapterUnitCounts = [ChapterCount]int{
	7, 286, 200, 176, 120, 165, 206, 75, 129, 109, 123, 111, 43, 52, 99,
	128, 111, 110, 98, 135, 112, 78, 118, 64, 77, 227, 93, 88, 69, 60,
	34, 30, 73, 54, 45, 83, 182, 88, 75, 85, 54, 53, 89, 59, 37, 35, 38,
	29, 18, 45, 60, 49, 62, 55, 78, 96, 29, 22, 24, 13, 14, 11, 11, 18,
	12, 12, 30, 52, 52, 44, 28, 28, 20, 56, 40, 31, 50, 40, 46, 42, 29,
	19, 36, 25, 22, 17, 19, 26, 30, 20, 15, 21, 11, 8, 8, 19, 5, 8, 8,
	11, 11, 8, 3, 9, 5, 4, 7, 3, 6, 3, 5, 4, 5, 6,
}

// UnitsInChapter returns the number of verses in the given chapter,
// or 0 if the chapter number is out of range.
func UnitsInChapter(chapter int) int {
	if chapter < 1 || chapter > ChapterCount {
		return 0
	}
	return chapterUnitCounts[chapter-1]
}

// Reciter identifies an audio voice-track source.
type Reciter struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	NameAr string `json:"name_ar"`
}

// DefaultReciterID is used when no reciter has been selected.
const DefaultReciterID = "ar.alafasy"

// Reciters is the catalog of available recitations.
var Reciters = []Reciter{
	{ID: "ar.alafasy", Name: "Mishary Alafasy", NameAr: "مشاري العفاسي"},
	{ID: "ar.abdurrahmaansudais", Name: "Abdurrahman As-Sudais", NameAr: "عبدالرحمن السديس"},
	{ID: "ar.abdulsamad", Name: "Abdul Basit", NameAr: "عبدالباسط عبدالصمد"},
	{ID: "ar.husary", Name: "Al-Husary", NameAr: "محمود خليل الحصري"},
	{ID: "ar.minshawi", Name: "Al-Minshawi", NameAr: "محمد صديق المنشاوي"},
}

// ReciterByID looks up a reciter in the catalog.
func ReciterByID(id string) (Reciter, bool) {
	for _, r := range Reciters {
		if r.ID == id {
			return r, true
		}
	}
	return Reciter{}, false
}
