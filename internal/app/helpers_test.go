package app

import (
	"strconv"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/NDI05/ums-dental-platform-sub001/internal/infra/memory"
)

func testBank() *memory.QuestionBank {
	questions := make([]domain.Question, 12)
	for i := range questions {
		questions[i] = domain.Question{
			ID:            "q" + strconv.Itoa(10+i),
			Text:          "Statement " + strconv.Itoa(i),
			CorrectAnswer: i%2 == 0,
			CategoryID:    "brushing",
			Active:        true,
		}
	}
	return memory.NewQuestionBank(memory.NewStaticQuestionLoader(questions), time.Minute)
}

func testHost() domain.Identity {
	return domain.Identity{UserID: "host-1", Role: domain.RoleTeacher, Name: "Dr. Gigi"}
}

func testParams() CreateSessionParams {
	return CreateSessionParams{Title: "Quiz A", TotalQuestions: 5, TimerPerQuestion: 30}
}
