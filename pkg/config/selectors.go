package config

import "fmt"

// Selectors holds every platform CSS selector the automation uses, so a
// markup change on the platform is a config edit.
type Selectors struct {
	// Login form
	LoginEmail     string `yaml:"login_email" json:"login_email"`
	LoginPassword  string `yaml:"login_password" json:"login_password"`
	LoginSubmit    string `yaml:"login_submit" json:"login_submit"`
	LoggedInMarker string `yaml:"logged_in_marker" json:"logged_in_marker"`

	// Exercise list. StatusClasses is priority ordered: cells carrying the
	// first class are picked before cells carrying the second, and so on.
	ExerciseCell  string   `yaml:"exercise_cell" json:"exercise_cell"`
	StatusClasses []string `yaml:"status_classes" json:"status_classes"`
	LaunchButton  string   `yaml:"launch_button" json:"launch_button"`

	// Exercise page
	Sentence        string `yaml:"sentence" json:"sentence"`
	WordSpan        string `yaml:"word_span" json:"word_span"`
	NoMistakeButton string `yaml:"no_mistake_button" json:"no_mistake_button"`
	NextButton      string `yaml:"next_button" json:"next_button"`
	FinishButton    string `yaml:"finish_button" json:"finish_button"`
	OptionSelect    string `yaml:"option_select" json:"option_select"`
	OptionChoice    string `yaml:"option_choice" json:"option_choice"`

	// Training popup
	Popup              string `yaml:"popup" json:"popup"`
	PopupUnderstood    string `yaml:"popup_understood" json:"popup_understood"`
	PopupQuestion      string `yaml:"popup_question" json:"popup_question"`
	PopupQuestionDone  string `yaml:"popup_question_done" json:"popup_question_done"`
	PopupQuestionText  string `yaml:"popup_question_text" json:"popup_question_text"`
	PopupCorrectButton string `yaml:"popup_correct_button" json:"popup_correct_button"`
	PopupWrongButton   string `yaml:"popup_wrong_button" json:"popup_wrong_button"`
	PopupExit          string `yaml:"popup_exit" json:"popup_exit"`
}

// DefaultSelectors returns the selectors of the current platform markup.
func DefaultSelectors() Selectors {
	return Selectors{
		LoginEmail:     "#user_pseudonym",
		LoginPassword:  "#user_password",
		LoginSubmit:    "#login-btn",
		LoggedInMarker: ".activity-selector-cell",

		ExerciseCell:  ".activity-selector-cell",
		StatusClasses: []string{"activity-selector-cell-in-progress", "activity-selector-cell-not-started", "activity-selector-cell-todo"},
		LaunchButton:  ".activity-selector-cell-launch-button",

		Sentence:        ".sentence",
		WordSpan:        ".pointAndClickSpan",
		NoMistakeButton: ".noMistakeButton",
		NextButton:      ".nextButton",
		FinishButton:    ".exitButton",
		OptionSelect:    ".sentence select",
		OptionChoice:    ".choiceButton",

		Popup:              ".popupPanelLessonQuestions",
		PopupUnderstood:    ".understoodButton",
		PopupQuestion:      ".intensiveQuestion",
		PopupQuestionDone:  ".answerStatus",
		PopupQuestionText:  ".sentence",
		PopupCorrectButton: ".buttonOk",
		PopupWrongButton:   ".buttonKo",
		PopupExit:          ".popupPanelLessonQuestions .exitButton",
	}
}

// Validate checks that every selector the solver cannot do without is set.
func (s Selectors) Validate() error {
	required := map[string]string{
		"exercise_cell":     s.ExerciseCell,
		"sentence":          s.Sentence,
		"word_span":         s.WordSpan,
		"no_mistake_button": s.NoMistakeButton,
		"next_button":       s.NextButton,
		"finish_button":     s.FinishButton,
		"popup":             s.Popup,
		"popup_question":    s.PopupQuestion,
	}
	for name, sel := range required {
		if sel == "" {
			return fmt.Errorf("selectors.%s is required", name)
		}
	}
	return nil
}
