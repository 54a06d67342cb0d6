package builtin

import (
	"context"
	"math/rand"

	"github.com/parlorchat/parlor"
)

var eightballAnswers = []string{
	"It is certain.",
	"Without a doubt.",
	"Yes, definitely.",
	"Most likely.",
	"Signs point to yes.",
	"Reply hazy, try again.",
	"Ask again later.",
	"Better not tell you now.",
	"Don't count on it.",
	"My reply is no.",
	"Outlook not so good.",
	"Very doubtful.",
}

// Eightball answers any mention with a random fortune.
type Eightball struct{}

func (Eightball) ID() string { return "eightball" }

func (Eightball) Execute(_ context.Context, _ parlor.ExecContext, _ map[string]string) (string, error) {
	return eightballAnswers[rand.Intn(len(eightballAnswers))], nil
}
