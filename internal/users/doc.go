// Package users はusers-serviceの内部実装を提供する。
//
// ユーザー情報をSQLiteに保持し、gatewayなど信頼できる内部サービス向けに
// GraphQLの内部API（POST /internal-api）を公開する。内部APIは
// x-service-tokenヘッダーのサービス間アサーションを検証した呼び出しのみ受け付ける。
package users
