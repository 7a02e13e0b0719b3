// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// エンドユーザーのJWT検証、サービス間トークンの検証、リクエストID付与、
// リクエストログ、パニックリカバリ、CORS設定など、
// gatewayとusers-serviceで共通して使用するミドルウェアを含む。
package middleware
