// Package servicetoken はサービス間通信で使用する短命な署名付きアサーションを提供する。
//
// gatewayが内部サービス（users-service）を呼び出す際に、リクエストが
// gateway由来であることを証明するためのトークンを発行・検証する。
// エンドユーザーのセッショントークンとは別物であり、Authorizationヘッダーではなく
// 専用のヘッダー（x-service-token）で送信する。
package servicetoken
