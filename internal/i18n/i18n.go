// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package i18n provides the UI strings in Chinese and English.
package i18n

import (
	"golang.org/x/text/language"

	"github.com/jeranaias/sprychat/internal/model"
)

var supported = []language.Tag{
	language.SimplifiedChinese, // first entry is the fallback
	language.English,
}

var matcher = language.NewMatcher(supported)

// Match maps an arbitrary language code to a supported Language.
// Unknown codes fall back to Chinese, the application default.
func Match(code string) model.Language {
	tag, err := language.Parse(code)
	if err != nil {
		return model.LanguageChinese
	}
	// On no confidence the matcher may pick any supported tag, so the
	// application default is applied explicitly.
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return model.LanguageChinese
	}
	if idx == 1 {
		return model.LanguageEnglish
	}
	return model.LanguageChinese
}

// messages holds every translatable UI string, keyed by message id.
var messages = map[string]map[model.Language]string{
	"conversation.default_title": {
		model.LanguageChinese: "新对话",
		model.LanguageEnglish: "New chat",
	},
	"conversation.empty": {
		model.LanguageChinese: "还没有消息",
		model.LanguageEnglish: "No messages yet",
	},
	"chat.thinking": {
		model.LanguageChinese: "思考中...",
		model.LanguageEnglish: "Thinking...",
	},
	"chat.input_placeholder": {
		model.LanguageChinese: "输入消息...",
		model.LanguageEnglish: "Type a message...",
	},
	"chat.stream_cancelled": {
		model.LanguageChinese: "已取消",
		model.LanguageEnglish: "Cancelled",
	},
	"error.missing_api_key": {
		model.LanguageChinese: "未配置 API 密钥",
		model.LanguageEnglish: "No API key configured",
	},
	"error.request_failed": {
		model.LanguageChinese: "请求失败",
		model.LanguageEnglish: "Request failed",
	},
	"settings.title": {
		model.LanguageChinese: "设置",
		model.LanguageEnglish: "Settings",
	},
	"picker.title": {
		model.LanguageChinese: "对话列表",
		model.LanguageEnglish: "Conversations",
	},
	"models.title": {
		model.LanguageChinese: "模型",
		model.LanguageEnglish: "Models",
	},
	"models.loading": {
		model.LanguageChinese: "正在加载模型列表...",
		model.LanguageEnglish: "Loading models...",
	},
	"clear.confirm": {
		model.LanguageChinese: "确定要删除所有对话吗？(y/N) ",
		model.LanguageEnglish: "Delete all conversations? (y/N) ",
	},
}

// T returns the string for key in the given language. Unknown keys
// return the key itself so a missing translation is visible instead of
// blank.
func T(lang model.Language, key string) string {
	entry, ok := messages[key]
	if !ok {
		return key
	}
	if s, ok := entry[lang]; ok {
		return s
	}
	return entry[model.LanguageChinese]
}

// DefaultTitle returns the localized title for a new conversation.
func DefaultTitle(lang model.Language) string {
	return T(lang, "conversation.default_title")
}

// IsDefaultTitle reports whether title is the default title in any
// supported language. Conversations created under one language setting
// must still auto-title correctly after the language changes.
func IsDefaultTitle(title string) bool {
	for _, entry := range messages["conversation.default_title"] {
		if title == entry {
			return true
		}
	}
	return title == ""
}
