// Package userinfo はgatewayからusers-serviceの内部APIへユーザー情報を問い合わせる。
//
// 呼び出しごとに新しいサービス間アサーションを発行し、x-service-tokenヘッダーに
// 載せてGraphQLクエリを送信する。結果はキャッシュしない。
//
// 戻り値は次の3通り:
//   - (*User, nil): ユーザーが見つかった
//   - (nil, nil): ユーザーが存在しない
//   - (nil, *TransportError): 通信に失敗した（タイムアウトを含む）
package userinfo
