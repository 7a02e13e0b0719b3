// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// エンドユーザー向けJWTを検証し、ユーザー情報はuserinfo.Proxyを通して
// users-serviceの内部APIから取得する。外部からアクセス可能な唯一のサービスであり、
// セキュリティの境界線として機能する。
package gateway
