package services

import (
	"context"
	"errors"

	"journaling-go/internal/collectors/bot"
	"journaling-go/internal/collectors/qualtrics"
)

// PullBot downloads every configured bot table into the raw bot directory.
func (p *Pipeline) PullBot(ctx context.Context) error {
	if p.conf.Bot.SQLURL == "" {
		return errors.New("bot.sql_url is not configured")
	}
	return bot.NewClient(p.conf.Bot, p.log).PullAll(ctx, p.conf.RawDir(BotDir))
}

// PullQualtrics exports every configured survey into the raw survey
// directory.
func (p *Pipeline) PullQualtrics(ctx context.Context) error {
	if len(p.conf.Qualtrics.SurveyIDs) == 0 {
		return errors.New("qualtrics.survey_ids is not configured")
	}
	return qualtrics.NewClient(ctx, p.conf.Qualtrics, p.log).ExportAll(ctx, p.conf.Qualtrics.SurveyIDs, p.conf.RawDir(QualtricsDir))
}
