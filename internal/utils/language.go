package utils

import (
	"regexp"
	"strings"
)

// Language codes
const (
	LangEnglish  = "en"
	LangHebrew   = "he"
	LangArabic   = "ar"
	LangRussian  = "ru"
	LangChinese  = "zh"
	LangJapanese = "ja"
	LangKorean   = "ko"
)

// Language represents a detected language
type Language struct {
	Code       string
	Name       string
	Confidence float64
}

// ScriptRatio represents the ratio of characters in a specific script
type ScriptRatio struct {
	Code  string
	Name  string
	Ratio float64
}

// scripts maps each detectable language to its Unicode character ranges.
// Japanese includes the Kanji range, so plain Kanji text needs the
// Hiragana/Katakana tie-break below.
var scripts = []struct {
	code    string
	name    string
	pattern *regexp.Regexp
}{
	{LangHebrew, "Hebrew", regexp.MustCompile(`[\x{0590}-\x{05FF}]`)},
	{LangArabic, "Arabic", regexp.MustCompile(`[\x{0600}-\x{06FF}]`)},
	{LangRussian, "Russian", regexp.MustCompile(`[\x{0400}-\x{04FF}]`)},
	{LangChinese, "Chinese", regexp.MustCompile(`[\x{4E00}-\x{9FFF}]`)},
	{LangJapanese, "Japanese", regexp.MustCompile(`[\x{3040}-\x{309F}\x{30A0}-\x{30FF}\x{4E00}-\x{9FFF}]`)},
	{LangKorean, "Korean", regexp.MustCompile(`[\x{AC00}-\x{D7AF}]`)},
}

var kanaPattern = regexp.MustCompile(`[\x{3040}-\x{309F}\x{30A0}-\x{30FF}]`)

// DetectLanguage detects the language of the input text
// Returns the most likely language based on character patterns
func DetectLanguage(text string) Language {
	text = strings.TrimSpace(text)
	if text == "" {
		return Language{Code: LangEnglish, Name: "English", Confidence: 0.0}
	}

	ratios := calculateScriptRatios(text)
	return determineLanguageFromRatios(ratios, text)
}

// calculateScriptRatios calculates the ratio of characters for each script
func calculateScriptRatios(text string) []ScriptRatio {
	textRunes := len([]rune(text))

	ratios := make([]ScriptRatio, 0, len(scripts))
	for _, script := range scripts {
		matches := script.pattern.FindAllString(text, -1)
		ratios = append(ratios, ScriptRatio{
			Code:  script.code,
			Name:  script.name,
			Ratio: float64(len(matches)) / float64(textRunes),
		})
	}
	return ratios
}

// determineLanguageFromRatios determines the language based on script ratios
func determineLanguageFromRatios(ratios []ScriptRatio, text string) Language {
	threshold := 0.1 // Minimum 10% of characters must be in the target script

	// Find the highest ratio above threshold
	var bestMatch ScriptRatio
	bestMatch.Code = LangEnglish
	bestMatch.Name = "English"
	bestMatch.Ratio = 0.0

	for _, ratio := range ratios {
		if ratio.Ratio > threshold && ratio.Ratio > bestMatch.Ratio {
			bestMatch = ratio
		}
	}

	// If no language meets the threshold, check for any non-English script
	if bestMatch.Code == LangEnglish {
		for _, ratio := range ratios {
			if ratio.Ratio > 0.01 && ratio.Ratio > bestMatch.Ratio { // Lower threshold for mixed text
				bestMatch = ratio
			}
		}
	}

	// Special handling for Chinese vs Japanese
	if bestMatch.Code == LangChinese || bestMatch.Code == LangJapanese {
		return handleChineseJapanese(bestMatch, text)
	}

	return Language{Code: bestMatch.Code, Name: bestMatch.Name, Confidence: bestMatch.Ratio}
}

// handleChineseJapanese distinguishes Japanese from Chinese by Kana presence
func handleChineseJapanese(bestMatch ScriptRatio, text string) Language {
	kanaMatches := kanaPattern.FindAllString(text, -1)
	kanaRatio := float64(len(kanaMatches)) / float64(len([]rune(text)))

	// If there are significant Hiragana/Katakana characters, it's Japanese
	if kanaRatio > 0.05 {
		return Language{Code: LangJapanese, Name: "Japanese", Confidence: bestMatch.Ratio}
	}

	return Language{Code: LangChinese, Name: "Chinese", Confidence: bestMatch.Ratio}
}

// GetLanguageInstruction returns a language instruction for the AI based on detected language
func GetLanguageInstruction(lang Language) string {
	switch lang.Code {
	case LangHebrew:
		return "Please respond in Hebrew (עברית)."
	case LangArabic:
		return "Please respond in Arabic (العربية)."
	case LangRussian:
		return "Please respond in Russian (Русский)."
	case LangChinese:
		return "Please respond in Chinese (中文)."
	case LangJapanese:
		return "Please respond in Japanese (日本語)."
	case LangKorean:
		return "Please respond in Korean (한국어)."
	case "es":
		return "Please respond in Spanish (Español)."
	case "fr":
		return "Please respond in French (Français)."
	case "de":
		return "Please respond in German (Deutsch)."
	case "it":
		return "Please respond in Italian (Italiano)."
	case "pt":
		return "Please respond in Portuguese (Português)."
	default:
		return "Please respond in English."
	}
}
