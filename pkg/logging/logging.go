// Package logging はサービス共通のlogrusロガーを生成する。
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Format はログの出力形式。
type Format string

const (
	// FormatJSON はJSON形式で出力する。
	FormatJSON Format = "json"
	// FormatText は人間向けのテキスト形式で出力する。
	FormatText Format = "text"
)

// New はサービス名をフィールドに持つロガーを生成する。
// levelはlogrusのレベル名（debug, info, warn, error）、formatはjsonまたはtext。
func New(service, level, format string) (*logrus.Entry, error) {
	return NewWithWriter(os.Stdout, service, level, format)
}

// NewWithWriter は出力先を指定してロガーを生成する。
func NewWithWriter(w io.Writer, service, level, format string) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("ログレベルが不正です: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)

	switch Format(strings.ToLower(strings.TrimSpace(format))) {
	case FormatJSON, "":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("ログ形式が不正です: %q", format)
	}

	return logger.WithField("service", service), nil
}
